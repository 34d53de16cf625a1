package omniagent

import (
	"context"
	"strings"
)

// imageEditCues mark a turn as editing the previous image rather than
// asking for a fresh one. Trailing spaces keep "add " from matching
// "addition".
var imageEditCues = []string{
	"add ",
	"replace ",
	"change ",
	"make it ",
	"but it",
	"not ",
	"fix ",
	"update ",
	"background",
	"foreground",
	"remove ",
}

func containsAnyCue(s string, cues []string) bool {
	for _, c := range cues {
		if strings.Contains(s, c) {
			return true
		}
	}
	return false
}

// contextNode inspects artifact memory and decides whether this turn is an
// image edit, linking the previous image artifact when it is.
func (e *Engine) contextNode(_ context.Context, st *RunState, _ *Emitter) error {
	userLower := strings.ToLower(strings.TrimSpace(st.UserText))
	lastImage := st.Artifacts.Image

	isEdit := lastImage != nil && containsAnyCue(userLower, imageEditCues)
	st.Context = ContextBundle{
		HasLastImage: lastImage != nil,
		IsImageEdit:  isEdit,
	}
	if isEdit {
		st.Linked = &LinkedArtifact{
			Kind:   "image",
			ID:     lastImage.ID,
			Prompt: lastImage.Prompt,
			URL:    lastImage.URL,
		}
	}
	st.PushNote("context", "Context prepared", map[string]any{
		"has_last_image": lastImage != nil,
		"is_image_edit":  isEdit,
	})
	return nil
}
