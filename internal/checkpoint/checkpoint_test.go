package checkpoint

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	logx "dagrun/pkg/logx"
)

func openStore(t *testing.T, driver string) (Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state", "checkpoint."+driver)
	st, err := Open(Config{Driver: driver, Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open(%s): %v", driver, err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st, path
}

func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"file", "sqlite"} {
		driver := driver
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			st, _ := openStore(t, driver)

			names, err := st.Load(ctx)
			if err != nil || len(names) != 0 {
				t.Fatalf("fresh Load = %v, %v; want empty", names, err)
			}
			if err := st.Save(ctx, []string{"job2", " job0 ", "", "job2", "job7"}); err != nil {
				t.Fatalf("Save: %v", err)
			}
			names, err = st.Load(ctx)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if got := fmt.Sprint(names); got != "[job2 job0 job7]" {
				t.Fatalf("Load = %s", got)
			}
			// Save replaces, it does not append.
			if err := st.Save(ctx, []string{"job1"}); err != nil {
				t.Fatalf("Save: %v", err)
			}
			names, _ = st.Load(ctx)
			if got := fmt.Sprint(names); got != "[job1]" {
				t.Fatalf("Load after replace = %s", got)
			}
			if err := st.Clear(ctx); err != nil {
				t.Fatalf("Clear: %v", err)
			}
			names, _ = st.Load(ctx)
			if len(names) != 0 {
				t.Fatalf("Load after Clear = %v", names)
			}
		})
	}
}

func TestFileStoreToleratesMissingAndEmpty(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st, path := openStore(t, "file")

	if err := st.Clear(ctx); err != nil {
		t.Fatalf("Clear on missing file: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("Clear should not create the file, stat err = %v", err)
	}
	if err := os.WriteFile(path, []byte("  \n"), 0o600); err != nil {
		t.Fatal(err)
	}
	names, err := st.Load(ctx)
	if err != nil || len(names) != 0 {
		t.Fatalf("Load of blank file = %v, %v", names, err)
	}
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := st.Load(ctx); err == nil {
		t.Fatal("expected error for corrupt checkpoint")
	}
}

func TestFileStoreFormat(t *testing.T) {
	t.Parallel()
	st, path := openStore(t, "file")
	if err := st.Save(context.Background(), []string{"a", "b"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `["a","b"]` {
		t.Fatalf("file content = %s", b)
	}
}

func TestOpenDrivers(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{}, logx.Logger{})
	if err != nil {
		t.Fatalf("Open(empty): %v", err)
	}
	if _, ok := st.(nopStore); !ok {
		t.Fatalf("empty config should select none, got %T", st)
	}
	st, err = Open(Config{Path: filepath.Join(t.TempDir(), "cp.json")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open(path only): %v", err)
	}
	if _, ok := st.(*fileStore); !ok {
		t.Fatalf("path-only config should select file, got %T", st)
	}
	if _, err := Open(Config{Driver: "redis"}, logx.Nop()); err == nil {
		t.Fatal("expected unknown driver error")
	}
	if _, err := Open(Config{Driver: "file"}, logx.Nop()); err == nil {
		t.Fatal("expected missing path error")
	}
}
