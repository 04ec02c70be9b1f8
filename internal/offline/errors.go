package offline

import "errors"

var (
	// ErrPrecacheFailed indicates a shell asset could not be fetched during install.
	ErrPrecacheFailed = errors.New("precache failed")
	// ErrNothingWaiting indicates there is no installed worker to activate.
	ErrNothingWaiting = errors.New("no waiting worker")
	// ErrInvalidManifest indicates an unusable cache manifest.
	ErrInvalidManifest = errors.New("invalid cache manifest")
	// ErrNoInstallPrompt indicates the platform has not offered installation.
	ErrNoInstallPrompt = errors.New("install prompt not available")
)
