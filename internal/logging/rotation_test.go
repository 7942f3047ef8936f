package logging

import (
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"testing"
)

const chunk = 700 * 1024

func writeChunks(t *testing.T, rw *RotatingWriter, n int) {
	t.Helper()
	data := bytes.Repeat([]byte("x"), chunk)
	for range n {
		if _, err := rw.Write(data); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
}

func TestNewRotatingWriter(t *testing.T) {
	t.Run("creates nested directories", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "a", "b", LogFileName)
		rw, err := NewRotatingWriter(path, DefaultRotationConfig())
		if err != nil {
			t.Fatalf("NewRotatingWriter failed: %v", err)
		}
		defer func() { _ = rw.Close() }()

		if rw.Path() != path {
			t.Errorf("Path() = %q, want %q", rw.Path(), path)
		}
		if _, err := os.Stat(path); err != nil {
			t.Errorf("file not created: %v", err)
		}
	})

	t.Run("picks up existing size", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), LogFileName)
		if err := os.WriteFile(path, []byte("hello\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		rw, err := NewRotatingWriter(path, DefaultRotationConfig())
		if err != nil {
			t.Fatalf("NewRotatingWriter failed: %v", err)
		}
		defer func() { _ = rw.Close() }()

		if rw.Size() != 6 {
			t.Errorf("Size() = %d, want 6", rw.Size())
		}
	})
}

func TestRotatingWriter_Rotation(t *testing.T) {
	tests := []struct {
		name       string
		cfg        RotationConfig
		writes     int
		rotations  int
		wantExists []string
		wantAbsent []string
	}{
		{
			name:       "rotation disabled",
			cfg:        RotationConfig{MaxSizeMB: 0, MaxBackups: 3},
			writes:     3,
			rotations:  0,
			wantAbsent: []string{".1"},
		},
		{
			name:       "single rotation keeps backup",
			cfg:        RotationConfig{MaxSizeMB: 1, MaxBackups: 3},
			writes:     2,
			rotations:  1,
			wantExists: []string{".1"},
		},
		{
			name:       "backups are capped",
			cfg:        RotationConfig{MaxSizeMB: 1, MaxBackups: 2},
			writes:     5,
			rotations:  4,
			wantExists: []string{".1", ".2"},
			wantAbsent: []string{".3"},
		},
		{
			name:       "no backups",
			cfg:        RotationConfig{MaxSizeMB: 1, MaxBackups: 0},
			writes:     2,
			rotations:  1,
			wantAbsent: []string{".1"},
		},
		{
			name:       "compressed backups",
			cfg:        RotationConfig{MaxSizeMB: 1, MaxBackups: 2, Compress: true},
			writes:     2,
			rotations:  1,
			wantExists: []string{".1.gz"},
			wantAbsent: []string{".1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), LogFileName)
			rw, err := NewRotatingWriter(path, tt.cfg)
			if err != nil {
				t.Fatalf("NewRotatingWriter failed: %v", err)
			}
			writeChunks(t, rw, tt.writes)
			if err := rw.Close(); err != nil {
				t.Fatalf("Close failed: %v", err)
			}

			if rw.Rotations() != tt.rotations {
				t.Errorf("Rotations() = %d, want %d", rw.Rotations(), tt.rotations)
			}
			for _, ext := range tt.wantExists {
				if _, err := os.Stat(path + ext); err != nil {
					t.Errorf("expected %s to exist: %v", ext, err)
				}
			}
			for _, ext := range tt.wantAbsent {
				if _, err := os.Stat(path + ext); !os.IsNotExist(err) {
					t.Errorf("expected %s to be absent", ext)
				}
			}
		})
	}
}

func TestRotatingWriter_CompressedContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), LogFileName)
	rw, err := NewRotatingWriter(path, RotationConfig{MaxSizeMB: 1, MaxBackups: 1, Compress: true})
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	writeChunks(t, rw, 2)
	_ = rw.Close()

	f, err := os.Open(path + ".1.gz")
	if err != nil {
		t.Fatalf("open backup: %v", err)
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	n, err := io.Copy(io.Discard, zr)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if n != chunk {
		t.Errorf("decompressed %d bytes, want %d", n, chunk)
	}
}

func TestRotatingWriter_WriteAfterClose(t *testing.T) {
	rw, err := NewRotatingWriter(filepath.Join(t.TempDir(), LogFileName), DefaultRotationConfig())
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	if err := rw.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := rw.Write([]byte("x")); err == nil {
		t.Error("Write after Close should fail")
	}
	if err := rw.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
	if err := rw.Sync(); err != nil {
		t.Errorf("Sync after Close = %v", err)
	}
}
