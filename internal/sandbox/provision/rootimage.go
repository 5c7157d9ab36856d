package provision

import (
	"archive/tar"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	appErr "agentbox/pkg/errors"
)

// UnpackRootImage populates the control directory from a tar.zst root-image
// archive, so the privileged-chroot backend has a complete minimal root to
// change into. Entries escaping the control directory are rejected.
func (p *Provisioner) UnpackRootImage(archivePath string) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return appErr.Wrapf(err, appErr.ProvisionFailed, "open root image failed")
	}
	defer file.Close()

	if err := os.MkdirAll(p.ctrl, 0o755); err != nil {
		return appErr.Wrapf(err, appErr.ProvisionFailed, "create control directory failed")
	}

	zstdReader, err := zstd.NewReader(file)
	if err != nil {
		return appErr.Wrapf(err, appErr.ProvisionFailed, "create zstd reader failed")
	}
	defer zstdReader.Close()

	tr := tar.NewReader(zstdReader)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return appErr.Wrapf(err, appErr.ProvisionFailed, "read root image entry failed")
		}
		if hdr.Name == "" {
			continue
		}
		cleanName := filepath.Clean(hdr.Name)
		if strings.HasPrefix(cleanName, "..") || filepath.IsAbs(cleanName) {
			return appErr.New(appErr.ProvisionFailed).WithMessage("invalid root image entry path")
		}
		target := filepath.Join(p.ctrl, cleanName)
		if !strings.HasPrefix(target, filepath.Clean(p.ctrl)+string(filepath.Separator)) {
			return appErr.New(appErr.ProvisionFailed).WithMessage("root image entry escape detected")
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return appErr.Wrapf(err, appErr.ProvisionFailed, "create dir failed")
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return appErr.Wrapf(err, appErr.ProvisionFailed, "create parent dir failed")
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil && !os.IsExist(err) {
				return appErr.Wrapf(err, appErr.ProvisionFailed, "create symlink failed")
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return appErr.Wrapf(err, appErr.ProvisionFailed, "create parent dir failed")
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, fs.FileMode(hdr.Mode))
			if err != nil {
				return appErr.Wrapf(err, appErr.ProvisionFailed, "create file failed")
			}
			if _, err := io.Copy(out, tr); err != nil {
				_ = out.Close()
				return appErr.Wrapf(err, appErr.ProvisionFailed, "write file failed")
			}
			_ = out.Close()
		default:
			// skip other types
		}
	}
	return nil
}

// IsRootImage reports whether the control directory looks like a complete
// minimal root image rather than a bare runtime cache.
func (p *Provisioner) IsRootImage() bool {
	for _, probe := range []string{"bin/sh", "usr"} {
		if _, err := os.Stat(filepath.Join(p.ctrl, probe)); err == nil {
			return true
		}
	}
	return false
}
