package provision

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"os"

	appErr "agentbox/pkg/errors"
)

// The launcher is the fixed minimal program that runs inside every child:
// it reads the request artifact, dispatches on mode, and writes exactly one
// response envelope. It is shipped as an embedded asset and installed into
// the control directory so every backend can reach it by path.
//
//go:embed launcher.py
var launcherSource []byte

// LauncherDigest returns the content hash of the embedded launcher.
func LauncherDigest() string {
	sum := sha256.Sum256(launcherSource)
	return hex.EncodeToString(sum[:])
}

// installLauncher writes the launcher into the control directory, rewriting
// it whenever the installed copy's content differs from the embedded asset.
func (p *Provisioner) installLauncher() error {
	path := p.LauncherPath()
	if data, err := os.ReadFile(path); err == nil {
		existing := sha256.Sum256(data)
		if hex.EncodeToString(existing[:]) == LauncherDigest() {
			return nil
		}
	}
	if err := os.WriteFile(path, launcherSource, 0o644); err != nil {
		return appErr.Wrapf(err, appErr.ProvisionFailed, "install launcher failed")
	}
	return nil
}
