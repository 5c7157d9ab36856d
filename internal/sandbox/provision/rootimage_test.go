package provision_test

import (
	"archive/tar"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"

	"agentbox/internal/sandbox/provision"
	pkgerrors "agentbox/pkg/errors"
)

type imageEntry struct {
	name     string
	typeflag byte
	content  string
	linkname string
}

func writeImage(t *testing.T, path string, entries []imageEntry) {
	t.Helper()
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("create archive: %v", err)
	}
	enc, err := zstd.NewWriter(file)
	if err != nil {
		t.Fatalf("zstd writer: %v", err)
	}
	tw := tar.NewWriter(enc)
	for _, e := range entries {
		hdr := &tar.Header{
			Name:     e.name,
			Typeflag: e.typeflag,
			Mode:     0o755,
			Linkname: e.linkname,
			Size:     int64(len(e.content)),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("write header %s: %v", e.name, err)
		}
		if e.typeflag == tar.TypeReg {
			if _, err := tw.Write([]byte(e.content)); err != nil {
				t.Fatalf("write body %s: %v", e.name, err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close zstd: %v", err)
	}
	if err := file.Close(); err != nil {
		t.Fatalf("close file: %v", err)
	}
}

func TestUnpackRootImage(t *testing.T) {
	ws := t.TempDir()
	p, err := provision.New(provision.Config{Workspace: ws})
	if err != nil {
		t.Fatalf("new provisioner: %v", err)
	}
	if p.IsRootImage() {
		t.Fatalf("empty control directory claimed to be a root image")
	}

	archive := filepath.Join(t.TempDir(), "root.tar.zst")
	writeImage(t, archive, []imageEntry{
		{name: "bin", typeflag: tar.TypeDir},
		{name: "bin/sh", typeflag: tar.TypeReg, content: "#!/bin/true\n"},
		{name: "bin/bash", typeflag: tar.TypeSymlink, linkname: "sh"},
		{name: "usr/lib/os-release", typeflag: tar.TypeReg, content: "ID=minimal\n"},
	})

	if err := p.UnpackRootImage(archive); err != nil {
		t.Fatalf("unpack: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(p.ControlDir(), "bin", "sh"))
	if err != nil {
		t.Fatalf("read bin/sh: %v", err)
	}
	if string(data) != "#!/bin/true\n" {
		t.Fatalf("bin/sh content = %q", data)
	}

	link, err := os.Readlink(filepath.Join(p.ControlDir(), "bin", "bash"))
	if err != nil {
		t.Fatalf("readlink: %v", err)
	}
	if link != "sh" {
		t.Fatalf("symlink target = %s", link)
	}

	if _, err := os.Stat(filepath.Join(p.ControlDir(), "usr", "lib", "os-release")); err != nil {
		t.Fatalf("nested file missing: %v", err)
	}

	if !p.IsRootImage() {
		t.Fatalf("unpacked tree not recognized as a root image")
	}
}

func TestUnpackRootImageRejectsEscapes(t *testing.T) {
	cases := []struct {
		name  string
		entry imageEntry
	}{
		{
			name:  "dot dot traversal",
			entry: imageEntry{name: "../evil.txt", typeflag: tar.TypeReg, content: "x"},
		},
		{
			name:  "absolute path",
			entry: imageEntry{name: "/etc/passwd", typeflag: tar.TypeReg, content: "x"},
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			p, err := provision.New(provision.Config{Workspace: t.TempDir()})
			if err != nil {
				t.Fatalf("new provisioner: %v", err)
			}
			archive := filepath.Join(t.TempDir(), "bad.tar.zst")
			writeImage(t, archive, []imageEntry{tc.entry})

			err = p.UnpackRootImage(archive)
			if pkgerrors.GetCode(err) != pkgerrors.ProvisionFailed {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestUnpackRootImageMissingArchive(t *testing.T) {
	p, err := provision.New(provision.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("new provisioner: %v", err)
	}
	err = p.UnpackRootImage(filepath.Join(t.TempDir(), "absent.tar.zst"))
	if pkgerrors.GetCode(err) != pkgerrors.ProvisionFailed {
		t.Fatalf("unexpected error: %v", err)
	}
}
