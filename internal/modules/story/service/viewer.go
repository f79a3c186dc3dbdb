package service

import (
	"errors"
	"time"

	"github.com/circlesplus/backend/internal/entity"
	"github.com/google/uuid"
)

// Per-story display durations.
const (
	ImageStoryDuration = 5 * time.Second
	VideoStoryDuration = 10 * time.Second
)

type ViewerState string

const (
	ViewerPlaying  ViewerState = "playing"
	ViewerPaused   ViewerState = "paused"
	ViewerEditing  ViewerState = "editing"
	ViewerFinished ViewerState = "finished"
)

var (
	ErrViewerFinished = errors.New("viewer session has finished")
	ErrNotStoryOwner  = errors.New("only the story owner can edit it")
	ErrNotEditing     = errors.New("no edit in progress")
)

// ViewerSession drives story playback for one viewer. Images show for five
// seconds and videos for ten; the timer only runs while playing. Stories
// that expire mid-session are skipped when reached.
type ViewerSession struct {
	viewerID uuid.UUID
	stories  []*entity.Story
	index    int
	state    ViewerState
	now      func() time.Time

	startedAt time.Time
	elapsed   time.Duration
}

func NewViewerSession(viewerID uuid.UUID, stories []*entity.Story, now func() time.Time) *ViewerSession {
	if now == nil {
		now = time.Now
	}
	v := &ViewerSession{
		viewerID: viewerID,
		stories:  stories,
		index:    -1,
		state:    ViewerPlaying,
		now:      now,
	}
	v.advance(0)
	return v
}

func (v *ViewerSession) State() ViewerState {
	return v.state
}

// Current returns the story on screen, or nil once the session finishes.
func (v *ViewerSession) Current() *entity.Story {
	if v.state == ViewerFinished {
		return nil
	}
	return v.stories[v.index]
}

// Remaining reports how much display time the current story has left.
func (v *ViewerSession) Remaining() time.Duration {
	if v.state == ViewerFinished {
		return 0
	}
	total := storyDuration(v.Current())
	spent := v.elapsed
	if v.state == ViewerPlaying {
		spent += v.now().Sub(v.startedAt)
	}
	if spent >= total {
		return 0
	}
	return total - spent
}

// Tick advances playback past any story whose display time has elapsed.
// Call it whenever time moves; it is a no-op while paused or editing.
func (v *ViewerSession) Tick() {
	if v.state != ViewerPlaying {
		return
	}
	for v.state == ViewerPlaying && v.Remaining() == 0 {
		v.advance(v.index + 1)
	}
}

func (v *ViewerSession) Pause() {
	if v.state != ViewerPlaying {
		return
	}
	v.elapsed += v.now().Sub(v.startedAt)
	v.state = ViewerPaused
}

func (v *ViewerSession) Resume() {
	if v.state != ViewerPaused {
		return
	}
	v.startedAt = v.now()
	v.state = ViewerPlaying
}

// Next skips to the following story regardless of remaining time.
func (v *ViewerSession) Next() {
	if v.state == ViewerFinished || v.state == ViewerEditing {
		return
	}
	v.advance(v.index + 1)
}

// Prev steps back to the nearest earlier unexpired story, restarting its
// timer. At the first story it restarts the current one.
func (v *ViewerSession) Prev() {
	if v.state == ViewerFinished || v.state == ViewerEditing {
		return
	}
	now := v.now()
	for i := v.index - 1; i >= 0; i-- {
		if !v.stories[i].Expired(now) {
			v.index = i
			v.restartTimer()
			return
		}
	}
	v.restartTimer()
}

// BeginEdit suspends playback so the owner can replace the story's media.
func (v *ViewerSession) BeginEdit() error {
	if v.state == ViewerFinished {
		return ErrViewerFinished
	}
	if v.Current().ProfileID != v.viewerID {
		return ErrNotStoryOwner
	}
	if v.state == ViewerPlaying {
		v.elapsed += v.now().Sub(v.startedAt)
	}
	v.state = ViewerEditing
	return nil
}

// SaveEdit ends the edit and replays the story from the start. The saved
// story's expiry was refreshed, so it cannot be skipped as expired here.
func (v *ViewerSession) SaveEdit(updated *entity.Story) error {
	if v.state != ViewerEditing {
		return ErrNotEditing
	}
	if updated != nil {
		v.stories[v.index] = updated
	}
	v.restartTimer()
	return nil
}

// CancelEdit resumes playback where it left off.
func (v *ViewerSession) CancelEdit() error {
	if v.state != ViewerEditing {
		return ErrNotEditing
	}
	v.startedAt = v.now()
	v.state = ViewerPlaying
	return nil
}

// advance moves to the first unexpired story at or after i, finishing the
// session when none remains.
func (v *ViewerSession) advance(i int) {
	now := v.now()
	for ; i < len(v.stories); i++ {
		if !v.stories[i].Expired(now) {
			v.index = i
			v.restartTimer()
			return
		}
	}
	v.state = ViewerFinished
}

func (v *ViewerSession) restartTimer() {
	v.startedAt = v.now()
	v.elapsed = 0
	v.state = ViewerPlaying
}

func storyDuration(st *entity.Story) time.Duration {
	if st.IsVideo() {
		return VideoStoryDuration
	}
	return ImageStoryDuration
}
