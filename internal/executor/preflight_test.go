package executor

import (
	"testing"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/paragent/internal/task"
)

func TestPreflight(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := fs.MkdirAll("/work/assets", 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := afero.WriteFile(fs, "/work/assets/shot.png", []byte("png"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := afero.WriteFile(fs, "/work/file.txt", []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	tests := []struct {
		name    string
		spec    task.Spec
		wantErr string
	}{
		{"existing workdir", task.Spec{Workdir: "/work"}, ""},
		{"existing image", task.Spec{Workdir: "/work", Images: []string{"/work/assets/shot.png"}}, ""},
		{"missing workdir", task.Spec{Workdir: "/missing"}, "workdir not found: /missing"},
		{"workdir is a file", task.Spec{Workdir: "/work/file.txt"}, "workdir not found: /work/file.txt"},
		{"missing image", task.Spec{Workdir: "/work", Images: []string{"/work/none.png"}}, "image file not found: /work/none.png"},
		{"image is a directory", task.Spec{Workdir: "/work", Images: []string{"/work/assets"}}, "image file not found: /work/assets"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := preflight(fs, tt.spec)
			switch {
			case tt.wantErr == "" && err != nil:
				t.Errorf("preflight() error = %v, want nil", err)
			case tt.wantErr != "" && (err == nil || err.Error() != tt.wantErr):
				t.Errorf("preflight() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestPreflight_DefaultWorkdir(t *testing.T) {
	if err := preflight(afero.NewOsFs(), task.Spec{}); err != nil {
		t.Errorf("preflight() with empty workdir error = %v, want current directory accepted", err)
	}
}
