package service

import (
	"testing"
	"time"

	"github.com/circlesplus/backend/internal/entity"
	"github.com/google/uuid"
)

func strPtr(s string) *string { return &s }

func makeStory(owner uuid.UUID, video bool, expiresAt time.Time) *entity.Story {
	st := &entity.Story{
		ID:        uuid.New(),
		ProfileID: owner,
		ExpiresAt: expiresAt,
	}
	if video {
		st.VideoURL = strPtr("https://media.test/v.mp4")
	} else {
		st.ImageURL = strPtr("https://media.test/i.webp")
	}
	return st
}

func TestViewerAdvancesOnImageTimer(t *testing.T) {
	owner := uuid.New()
	viewer := uuid.New()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	later := clock.Now().Add(time.Hour)

	first := makeStory(owner, false, later)
	second := makeStory(owner, true, later)
	v := NewViewerSession(viewer, []*entity.Story{first, second}, clock.Now)

	if v.Current() != first {
		t.Fatal("session should start at the first story")
	}

	clock.Advance(4 * time.Second)
	v.Tick()
	if v.Current() != first {
		t.Error("image story advanced before five seconds")
	}

	clock.Advance(time.Second)
	v.Tick()
	if v.Current() != second {
		t.Error("image story should advance after five seconds")
	}

	// Video stories run ten seconds.
	clock.Advance(9 * time.Second)
	v.Tick()
	if v.Current() != second {
		t.Error("video story advanced before ten seconds")
	}

	clock.Advance(time.Second)
	v.Tick()
	if v.State() != ViewerFinished {
		t.Errorf("state = %q, want finished after the last story", v.State())
	}
	if v.Current() != nil {
		t.Error("finished session should have no current story")
	}
}

func TestViewerPauseStopsTheClock(t *testing.T) {
	owner := uuid.New()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	later := clock.Now().Add(time.Hour)

	story := makeStory(owner, false, later)
	v := NewViewerSession(owner, []*entity.Story{story}, clock.Now)

	clock.Advance(2 * time.Second)
	v.Pause()
	if v.State() != ViewerPaused {
		t.Fatalf("state = %q, want paused", v.State())
	}

	// Time passing while paused does not count.
	clock.Advance(time.Hour)
	v.Tick()
	if v.State() != ViewerPaused {
		t.Error("tick while paused should change nothing")
	}
	if got := v.Remaining(); got != 3*time.Second {
		t.Errorf("remaining = %v, want 3s", got)
	}

	v.Resume()
	clock.Advance(2 * time.Second)
	v.Tick()
	if v.State() != ViewerPlaying {
		t.Error("story should still be playing with 1s left")
	}

	clock.Advance(time.Second)
	v.Tick()
	if v.State() != ViewerFinished {
		t.Errorf("state = %q, want finished", v.State())
	}
}

func TestViewerSkipsExpiredStories(t *testing.T) {
	owner := uuid.New()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	expired := makeStory(owner, false, clock.Now().Add(-time.Minute))
	live := makeStory(owner, false, clock.Now().Add(time.Hour))
	expiresSoon := makeStory(owner, false, clock.Now().Add(2*time.Second))

	v := NewViewerSession(owner, []*entity.Story{expired, live, expiresSoon}, clock.Now)
	if v.Current() != live {
		t.Error("session should skip the expired story at start")
	}

	// By the time the first story finishes, the third has expired too.
	clock.Advance(5 * time.Second)
	v.Tick()
	if v.State() != ViewerFinished {
		t.Errorf("state = %q, want finished after skipping mid-session expiry", v.State())
	}
}

func TestViewerNextAndPrev(t *testing.T) {
	owner := uuid.New()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	later := clock.Now().Add(time.Hour)

	first := makeStory(owner, false, later)
	second := makeStory(owner, false, later)
	v := NewViewerSession(owner, []*entity.Story{first, second}, clock.Now)

	v.Next()
	if v.Current() != second {
		t.Error("Next should move to the second story")
	}

	v.Prev()
	if v.Current() != first {
		t.Error("Prev should move back to the first story")
	}
	if got := v.Remaining(); got != ImageStoryDuration {
		t.Errorf("remaining after Prev = %v, want a full timer", got)
	}

	// Prev at the first story restarts it.
	clock.Advance(3 * time.Second)
	v.Prev()
	if v.Current() != first {
		t.Error("Prev at the first story should stay there")
	}
	if got := v.Remaining(); got != ImageStoryDuration {
		t.Errorf("remaining after restart = %v, want a full timer", got)
	}
}

func TestViewerEditFlow(t *testing.T) {
	owner := uuid.New()
	stranger := uuid.New()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	later := clock.Now().Add(time.Hour)

	story := makeStory(owner, false, later)

	// A viewer who is not the owner cannot edit.
	v := NewViewerSession(stranger, []*entity.Story{story}, clock.Now)
	if err := v.BeginEdit(); err != ErrNotStoryOwner {
		t.Errorf("stranger BeginEdit = %v, want ErrNotStoryOwner", err)
	}

	v = NewViewerSession(owner, []*entity.Story{story}, clock.Now)
	clock.Advance(2 * time.Second)
	if err := v.BeginEdit(); err != nil {
		t.Fatalf("BeginEdit: %v", err)
	}
	if v.State() != ViewerEditing {
		t.Fatalf("state = %q, want editing", v.State())
	}

	// Time in the editor does not burn playback time.
	clock.Advance(time.Hour)
	v.Tick()
	v.Next()
	if v.State() != ViewerEditing {
		t.Error("Tick and Next should be inert while editing")
	}

	// Saving swaps in the refreshed story and replays it from the start.
	updated := makeStory(owner, true, clock.Now().Add(entity.StoryTTL))
	updated.ID = story.ID
	if err := v.SaveEdit(updated); err != nil {
		t.Fatalf("SaveEdit: %v", err)
	}
	if v.State() != ViewerPlaying {
		t.Errorf("state = %q, want playing after save", v.State())
	}
	if v.Current() != updated {
		t.Error("current story should be the updated one")
	}
	if got := v.Remaining(); got != VideoStoryDuration {
		t.Errorf("remaining after save = %v, want a full video timer", got)
	}
}

func TestViewerCancelEditResumesWhereItLeftOff(t *testing.T) {
	owner := uuid.New()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	later := clock.Now().Add(time.Hour)

	story := makeStory(owner, false, later)
	v := NewViewerSession(owner, []*entity.Story{story}, clock.Now)

	clock.Advance(2 * time.Second)
	if err := v.BeginEdit(); err != nil {
		t.Fatalf("BeginEdit: %v", err)
	}
	clock.Advance(time.Hour)
	if err := v.CancelEdit(); err != nil {
		t.Fatalf("CancelEdit: %v", err)
	}

	if got := v.Remaining(); got != 3*time.Second {
		t.Errorf("remaining after cancel = %v, want 3s", got)
	}
}

func TestViewerEmptySessionFinishesImmediately(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	v := NewViewerSession(uuid.New(), nil, clock.Now)
	if v.State() != ViewerFinished {
		t.Errorf("state = %q, want finished for an empty session", v.State())
	}
	if err := v.BeginEdit(); err != ErrViewerFinished {
		t.Errorf("BeginEdit on finished session = %v, want ErrViewerFinished", err)
	}
}
