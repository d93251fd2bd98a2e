package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listing_orchestrator/internal/domain"
	"listing_orchestrator/internal/infrastructure/platform"
)

var testTokens = platform.Tokens{CSRF: "csrf", ActorID: "100"}

func testMaterial(photos ...string) *domain.Material {
	return &domain.Material{ID: "m1", Title: "Kursi Kayu", Price: "Rp 150.000", PhotoPaths: photos}
}

func commonVars(t *testing.T, vars map[string]any) map[string]any {
	t.Helper()
	input, ok := vars["input"].(map[string]any)
	require.True(t, ok)
	data, ok := input["data"].(map[string]any)
	require.True(t, ok)
	common, ok := data["common"].(map[string]any)
	require.True(t, ok)
	return common
}

func TestPublishStandard(t *testing.T) {
	e := newTestEnv(t)
	e.remote.respond = func(op string, _ map[string]any) ([]byte, error) {
		return createdBody("L9"), nil
	}

	pub, err := e.publisher.Publish(context.Background(), &fakeSession{}, testTokens, testMaterial("/a.jpg", "/b.jpg"), domain.ModeStandard, false, nil)
	require.NoError(t, err)
	assert.Equal(t, "L9", pub.ListingID)
	assert.Equal(t, "https://market.test/item/L9", pub.URL)
	assert.Equal(t, 2, pub.Photos)

	require.Equal(t, []string{platform.OpCreateListing}, e.remote.ops())
	common := commonVars(t, e.remote.calls[0].vars)
	assert.Equal(t, []string{"up-1", "up-2"}, common["photo_ids"])
	assert.NotContains(t, common, "draft_type")
	assert.Equal(t, []time.Duration{500 * time.Millisecond}, e.sleeper.durations(), "one gap between two uploads")
}

func TestPublishSkipsFailedUploads(t *testing.T) {
	e := newTestEnv(t)
	e.uploader.fail["/bad.jpg"] = true

	pub, err := e.publisher.Publish(context.Background(), &fakeSession{}, testTokens, testMaterial("/bad.jpg", "/good.jpg"), domain.ModeStandard, false, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, pub.Photos)
	assert.Equal(t, []string{"/bad.jpg", "/good.jpg"}, e.uploader.paths)
}

func TestPublishFailsWithoutPhotos(t *testing.T) {
	e := newTestEnv(t)
	e.uploader.fail["/a.jpg"] = true

	_, err := e.publisher.Publish(context.Background(), &fakeSession{}, testTokens, testMaterial("/a.jpg"), domain.ModeStandard, false, nil)
	assert.ErrorIs(t, err, ErrNoPhotosUploaded)
	assert.Empty(t, e.remote.ops())
}

func TestPublishStandardErrors(t *testing.T) {
	t.Run("remote message verbatim", func(t *testing.T) {
		e := newTestEnv(t)
		e.remote.respond = func(string, map[string]any) ([]byte, error) {
			return nil, &domain.RemoteMutationError{Message: "Your listing could not be posted"}
		}
		_, err := e.publisher.Publish(context.Background(), &fakeSession{}, testTokens, testMaterial("/a.jpg"), domain.ModeStandard, false, nil)
		assert.EqualError(t, err, "Your listing could not be posted")
	})

	t.Run("no reference", func(t *testing.T) {
		e := newTestEnv(t)
		e.remote.respond = func(string, map[string]any) ([]byte, error) {
			return []byte(`{"data":{}}`), nil
		}
		_, err := e.publisher.Publish(context.Background(), &fakeSession{}, testTokens, testMaterial("/a.jpg"), domain.ModeStandard, false, nil)
		var remoteErr *domain.RemoteMutationError
		require.True(t, errors.As(err, &remoteErr))
		assert.Equal(t, "no listing reference in response", remoteErr.Message)
	})
}

func TestPublishAntiDuplicate(t *testing.T) {
	e := newTestEnv(t)
	e.remote.respond = func(op string, _ map[string]any) ([]byte, error) {
		if op == platform.OpCreateListing {
			return createdBody("D1", "P1", "P2"), nil
		}
		return []byte(`{"data":{}}`), nil
	}

	pub, err := e.publisher.Publish(context.Background(), &fakeSession{}, testTokens, testMaterial("/a.jpg"), domain.ModeAntiDuplicate, true, nil)
	require.NoError(t, err)
	assert.Equal(t, "D1", pub.ListingID)

	require.Equal(t, []string{platform.OpCreateListing, platform.OpEditListing, platform.OpPublishDraft}, e.remote.ops())
	draft := commonVars(t, e.remote.calls[0].vars)
	assert.Equal(t, "DRAFT", draft["draft_type"])
	assert.Equal(t, "HIDDEN_FROM_FRIENDS", draft["hidden_from_friends_visibility"])

	edit := commonVars(t, e.remote.calls[1].vars)
	assert.Equal(t, []string{"P1", "P2"}, edit["photo_ids"], "only permanent ids are re-sent")
	assert.Equal(t, "D1", e.remote.calls[1].vars["input"].(map[string]any)["listing_id"])
	assert.Equal(t, "D1", e.remote.calls[2].vars["input"].(map[string]any)["target_draft_fbid"])

	assert.Equal(t, []time.Duration{5 * time.Second, 2 * time.Second}, e.sleeper.durations())
}

func TestPublishAntiDuplicatePhaseFailures(t *testing.T) {
	tests := []struct {
		name    string
		failOn  string
		want    string
		wantOps []string
	}{
		{"draft", platform.OpCreateListing, "draft failed: rejected", []string{platform.OpCreateListing}},
		{"save", platform.OpEditListing, "save failed: rejected", []string{platform.OpCreateListing, platform.OpEditListing}},
		{"launch", platform.OpPublishDraft, "launch failed: rejected", []string{platform.OpCreateListing, platform.OpEditListing, platform.OpPublishDraft}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnv(t)
			e.remote.respond = func(op string, _ map[string]any) ([]byte, error) {
				if op == tt.failOn {
					return nil, &domain.RemoteMutationError{Message: "rejected"}
				}
				return createdBody("D1", "P1"), nil
			}
			_, err := e.publisher.Publish(context.Background(), &fakeSession{}, testTokens, testMaterial("/a.jpg"), domain.ModeAntiDuplicate, false, nil)
			assert.EqualError(t, err, tt.want)
			assert.Equal(t, tt.wantOps, e.remote.ops())
		})
	}
}

func TestPublishDraftWithoutIDStops(t *testing.T) {
	e := newTestEnv(t)
	e.remote.respond = func(string, map[string]any) ([]byte, error) {
		return []byte(`{"data":{"marketplace_listing_create":{"listing":{"story":{"url":"https://market.test/x"}}}}}`), nil
	}
	_, err := e.publisher.Publish(context.Background(), &fakeSession{}, testTokens, testMaterial("/a.jpg"), domain.ModeAntiDuplicate, false, nil)
	assert.EqualError(t, err, "draft failed: no listing id in response")
	assert.Equal(t, []string{platform.OpCreateListing}, e.remote.ops())
}

func TestPublishHonoursCheckpointBetweenPhases(t *testing.T) {
	e := newTestEnv(t)
	aborted := false
	e.remote.onCall = func(op string) {
		if op == platform.OpCreateListing {
			aborted = true
		}
	}
	checkpoint := func() error {
		if aborted {
			return domain.ErrAborted
		}
		return nil
	}
	_, err := e.publisher.Publish(context.Background(), &fakeSession{}, testTokens, testMaterial("/a.jpg"), domain.ModeAntiDuplicate, false, checkpoint)
	assert.ErrorIs(t, err, domain.ErrAborted)
	assert.Equal(t, []string{platform.OpCreateListing}, e.remote.ops(), "no mutation after the abort")
}

func TestPostToGroup(t *testing.T) {
	e := newTestEnv(t)
	e.remote.respond = func(op string, _ map[string]any) ([]byte, error) {
		return storyBody("S1", ""), nil
	}

	pub, err := e.publisher.PostToGroup(context.Background(), &fakeSession{}, testTokens, testMaterial("/a.jpg", "/b.jpg"), "g1", nil)
	require.NoError(t, err)
	assert.Equal(t, "S1", pub.ListingID)
	assert.Equal(t, platform.GroupPostURL(e.cfg.PlatformBaseURL, "g1", "S1"), pub.URL)
	assert.Equal(t, 2, pub.Photos)

	require.Equal(t, []string{platform.OpGroupPost}, e.remote.ops())
	input := e.remote.calls[0].vars["input"].(map[string]any)
	assert.Equal(t, map[string]any{"to_id": "g1"}, input["audience"])
	assert.Len(t, input["attachments"], 2)
}

func TestPostToGroupFailures(t *testing.T) {
	tests := []struct {
		name    string
		respond func(string, map[string]any) ([]byte, error)
		want    string
	}{
		{
			name: "remote error",
			respond: func(string, map[string]any) ([]byte, error) {
				return nil, &domain.RemoteMutationError{Message: "not a member"}
			},
			want: "group post failed: not a member",
		},
		{
			name: "no post reference",
			respond: func(string, map[string]any) ([]byte, error) {
				return []byte(`{"data":{}}`), nil
			},
			want: "group post failed: no post reference in response",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnv(t)
			e.remote.respond = tt.respond
			_, err := e.publisher.PostToGroup(context.Background(), &fakeSession{}, testTokens, testMaterial("/a.jpg"), "g1", nil)
			assert.EqualError(t, err, tt.want)
		})
	}
}
