package converter

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/Faultbox/meshexport/internal/config"
)

func TestArgs(t *testing.T) {
	defaults := FromConfig(config.Default().Converter)

	tests := []struct {
		name    string
		edit    func(*Options)
		want    []string
		wantErr bool
	}{
		{"defaults", func(*Options) {}, []string{"in.mesh.xml"}, false},
		{"disabled passes", func(o *Options) {
			o.EdgeLists = false
			o.Reorganise = false
			o.OptimiseAnimations = false
		}, []string{"-e", "-r", "-o", "in.mesh.xml"}, false},
		{"tangents", func(o *Options) {
			o.Tangents = true
			o.TangentSemantic = "uvw"
			o.TangentSize = 4
			o.SplitMirrored = true
			o.SplitRotated = true
		}, []string{"-t", "-td", "uvw", "-ts", "4", "-tm", "-tr", "in.mesh.xml"}, false},
		{"extremes and log", func(o *Options) {
			o.ExtremityPoints = 8
			o.LogFile = "conv.log"
		}, []string{"-x", "8", "-log", "conv.log", "in.mesh.xml"}, false},
		{"extra args", func(o *Options) {
			o.ExtraArgs = `-E big -l 2 -s "Pixel Count"`
		}, []string{"-E", "big", "-l", "2", "-s", "Pixel Count", "in.mesh.xml"}, false},
		{"bad quoting", func(o *Options) { o.ExtraArgs = `-s "open` }, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := defaults
			tt.edit(&o)
			got, err := o.Args("in.mesh.xml")
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Args = %q, want %q", got, tt.want)
			}
		})
	}
}

// fakeConverter writes a script that records its arguments next to the
// input, fails for inputs containing "bad" and hangs for inputs containing
// "slow".
func fakeConverter(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake converter is a shell script")
	}
	path := filepath.Join(t.TempDir(), "fakeconv")
	script := `#!/bin/sh
for last; do :; done
echo "$@" > "$last.args"
case "$last" in
*bad*) echo "cannot parse $last" >&2; exit 3 ;;
*slow*) exec sleep 30 ;;
esac
exit 0
`
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSchedulerRuns(t *testing.T) {
	dir := t.TempDir()
	opts := FromConfig(config.Default().Converter)
	opts.Path = fakeConverter(t)
	opts.EdgeLists = false

	s := NewScheduler(context.Background(), opts, 2)
	good := filepath.Join(dir, "good.mesh.xml")
	bad := filepath.Join(dir, "bad.mesh.xml")
	for _, in := range []string{good, bad} {
		if _, err := s.Spawn(in); err != nil {
			t.Fatalf("Spawn(%s): %v", in, err)
		}
	}

	err := s.Wait()
	if err == nil || !strings.Contains(err.Error(), "bad.mesh.xml") {
		t.Errorf("Wait err = %v, want failure of bad.mesh.xml", err)
	}

	tasks := s.Tasks()
	if len(tasks) != 2 {
		t.Fatalf("got %d tasks, want 2", len(tasks))
	}
	if st := tasks[0].Status(); st != StatusSucceeded {
		t.Errorf("good status = %v", st)
	}
	if st := tasks[1].Status(); st != StatusFailed {
		t.Errorf("bad status = %v", st)
	}
	if code := tasks[1].ExitCode(); code != 3 {
		t.Errorf("bad exit code = %d, want 3", code)
	}
	if out := tasks[1].Output(); !strings.Contains(out, "cannot parse") {
		t.Errorf("bad output = %q", out)
	}

	recorded, err := os.ReadFile(good + ".args")
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(string(recorded)); got != "-e "+good {
		t.Errorf("converter args = %q", got)
	}
}

func TestSchedulerMissingBinary(t *testing.T) {
	opts := Options{Path: filepath.Join(t.TempDir(), "missing")}
	s := NewScheduler(context.Background(), opts, 1)
	task, err := s.Spawn("x.mesh.xml")
	if err != nil {
		t.Fatal(err)
	}
	if task.Status() != StatusFailed || task.Wait() == nil {
		t.Errorf("status = %v, err = %v", task.Status(), task.Wait())
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timed out")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSchedulerCapAndCancel(t *testing.T) {
	dir := t.TempDir()
	opts := Options{Path: fakeConverter(t), EdgeLists: true, Reorganise: true, OptimiseAnimations: true}
	s := NewScheduler(context.Background(), opts, 1)

	first, err := s.Spawn(filepath.Join(dir, "slow.mesh.xml"))
	if err != nil {
		t.Fatal(err)
	}
	if first.Status() != StatusRunning {
		t.Fatalf("first status = %v, want running", first.Status())
	}

	spawned := make(chan *Task)
	go func() {
		task, _ := s.Spawn(filepath.Join(dir, "next.mesh.xml"))
		spawned <- task
	}()
	waitFor(t, func() bool { return len(s.Tasks()) == 2 })
	if st := s.Tasks()[1].Status(); st != StatusPending {
		t.Errorf("second status = %v, want pending while the cap is reached", st)
	}

	s.Cancel()
	second := <-spawned
	err = s.Wait()
	if !errors.Is(err, ErrCanceled) {
		t.Errorf("Wait err = %v, want ErrCanceled", err)
	}
	for _, task := range []*Task{first, second} {
		if task.Status() != StatusCanceled {
			t.Errorf("%s status = %v, want canceled", task.Input, task.Status())
		}
	}

	if _, err := os.Stat(filepath.Join(dir, "next.mesh.xml.args")); !os.IsNotExist(err) {
		t.Error("pending conversion was started after cancel")
	}

	late, _ := s.Spawn(filepath.Join(dir, "late.mesh.xml"))
	if late.Status() != StatusCanceled {
		t.Errorf("spawn after cancel status = %v", late.Status())
	}
}

func TestStatusString(t *testing.T) {
	tests := []struct {
		s    Status
		want string
		done bool
	}{
		{StatusPending, "pending", false},
		{StatusRunning, "running", false},
		{StatusSucceeded, "succeeded", true},
		{StatusFailed, "failed", true},
		{StatusCanceled, "canceled", true},
	}
	for _, tt := range tests {
		if tt.s.String() != tt.want || tt.s.Done() != tt.done {
			t.Errorf("%d: String = %q Done = %v", int(tt.s), tt.s.String(), tt.s.Done())
		}
	}
}
