// Package media implements the artifact-producing lanes: image generation,
// speech synthesis, and vision analysis over uploaded images. Generated
// files land under the data dir and are served by the assets route.
package media

import (
	"fmt"
	"os"
	"path/filepath"

	omniagent "github.com/rishisan99/OmniAgent"
)

// Assets writes generated files into per-session directories and produces
// their public URLs.
type Assets struct {
	root string
}

// NewAssets creates an asset writer rooted at dir.
func NewAssets(dir string) *Assets {
	return &Assets{root: dir}
}

// Save stores data as {8-char id}.{ext} under the session's directory and
// returns the filename and its public URL.
func (a *Assets) Save(sessionID, ext string, data []byte) (filename, url string, err error) {
	dir := filepath.Join(a.root, sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("assets: mkdir: %w", err)
	}
	filename = omniagent.ShortID() + "." + ext
	if err := os.WriteFile(filepath.Join(dir, filename), data, 0o644); err != nil {
		return "", "", fmt.Errorf("assets: write: %w", err)
	}
	return filename, "/api/assets/" + sessionID + "/" + filename, nil
}

// SaveNamed stores data under the session's directory with an explicit
// filename. Used by the upload route, which prefixes names itself.
func (a *Assets) SaveNamed(sessionID, filename string, data []byte) (url string, err error) {
	dir := filepath.Join(a.root, sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("assets: mkdir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, filename), data, 0o644); err != nil {
		return "", fmt.Errorf("assets: write: %w", err)
	}
	return "/api/assets/" + sessionID + "/" + filename, nil
}

// Open returns the stored bytes for a session file.
func (a *Assets) Open(sessionID, filename string) ([]byte, error) {
	return os.ReadFile(filepath.Join(a.root, sessionID, filename))
}

// RemoveSession deletes the session's asset directory.
func (a *Assets) RemoveSession(sessionID string) error {
	return os.RemoveAll(filepath.Join(a.root, sessionID))
}
