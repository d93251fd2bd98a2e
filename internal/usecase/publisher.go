package usecase

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"listing_orchestrator/config"
	"listing_orchestrator/internal/domain"
	"listing_orchestrator/internal/infrastructure/platform"
	"listing_orchestrator/internal/logger"
	"listing_orchestrator/internal/session"
)

// RemoteCaller issues private API calls from inside a session.
type RemoteCaller interface {
	Call(ctx context.Context, s session.Session, tok platform.Tokens, op string, variables any) ([]byte, error)
}

// PhotoUploader uploads one photo and returns its upload-time id.
type PhotoUploader interface {
	Upload(ctx context.Context, s session.Session, tok platform.Tokens, path string) (string, error)
}

// Checkpoint returns domain.ErrAborted once the owning campaign was stopped.
type Checkpoint func() error

func noCheckpoint() error { return nil }

// ErrNoPhotosUploaded fails an item whose photos all failed to upload.
var ErrNoPhotosUploaded = errors.New("no photos uploaded")

// Publication is the result of a successful publish.
type Publication struct {
	ListingID string `json:"listing_id,omitempty"`
	URL       string `json:"url,omitempty"`
	Photos    int    `json:"photos"`
}

// PublisherOptions tunes the publish workflow.
type PublisherOptions struct {
	Catalog     platform.Catalog
	Fallback    platform.Coordinates
	BaseURL     string
	SettleDelay time.Duration
	LaunchDelay time.Duration
	UploadGap   DelayRange
}

// PublisherOptionsFrom reads the publish settings out of cfg.
func PublisherOptionsFrom(cfg *config.Config) PublisherOptions {
	return PublisherOptions{
		Catalog: platform.Catalog{
			Categories:       cfg.CategoryMap,
			Conditions:       cfg.ConditionMap,
			DefaultCategory:  cfg.DefaultCategory,
			DefaultCondition: cfg.DefaultCondition,
			Currency:         cfg.Currency,
		},
		Fallback:    platform.Coordinates{Lat: cfg.DefaultLatitude, Lng: cfg.DefaultLongitude},
		BaseURL:     cfg.PlatformBaseURL,
		SettleDelay: cfg.SettleDelay,
		LaunchDelay: cfg.LaunchDelay,
		UploadGap:   DelayRange{Min: cfg.UploadGapMin, Max: cfg.UploadGapMax},
	}
}

// Publisher runs the upload and create stages of one work item.
type Publisher struct {
	remote    RemoteCaller
	uploader  PhotoUploader
	locations domain.LocationRepository
	opts      PublisherOptions
	sleep     Sleeper
	jitter    *jitter
}

// NewPublisher creates a Publisher. locations may be nil.
func NewPublisher(remote RemoteCaller, uploader PhotoUploader, locations domain.LocationRepository, opts PublisherOptions) *Publisher {
	return &Publisher{
		remote:    remote,
		uploader:  uploader,
		locations: locations,
		opts:      opts,
		sleep:     SleepContext,
		jitter:    newJitter(),
	}
}

// SetSleeper replaces the wait used for upload gaps and phase delays.
func (p *Publisher) SetSleeper(s Sleeper) {
	if s != nil {
		p.sleep = s
	}
}

func (p *Publisher) lookupLocation(name string) (*domain.SavedLocation, bool) {
	if p.locations == nil {
		return nil, false
	}
	loc, err := p.locations.GetByName(name)
	if err != nil || loc == nil {
		return nil, false
	}
	return loc, true
}

// Publish uploads the material's photos and creates the listing in the given mode.
func (p *Publisher) Publish(ctx context.Context, s session.Session, tok platform.Tokens, m *domain.Material, mode domain.PublishMode, hideFromFriends bool, checkpoint Checkpoint) (Publication, error) {
	if checkpoint == nil {
		checkpoint = noCheckpoint
	}
	if err := checkpoint(); err != nil {
		return Publication{}, err
	}
	photoIDs, err := p.uploadPhotos(ctx, s, tok, m.PhotoPaths)
	if err != nil {
		return Publication{}, err
	}
	if len(m.PhotoPaths) > 0 && len(photoIDs) == 0 {
		return Publication{}, ErrNoPhotosUploaded
	}

	coords := platform.ResolveCoordinates(m, p.lookupLocation, p.opts.Fallback)
	listing := platform.BuildListing(m, p.opts.Catalog, coords, hideFromFriends)

	var pub Publication
	if mode == domain.ModeAntiDuplicate {
		pub, err = p.publishViaDraft(ctx, s, tok, listing, photoIDs, checkpoint)
	} else {
		pub, err = p.publishDirect(ctx, s, tok, listing, photoIDs, checkpoint)
	}
	pub.Photos = len(photoIDs)
	return pub, err
}

// PostToGroup uploads the material's photos and posts it for sale into groupID.
func (p *Publisher) PostToGroup(ctx context.Context, s session.Session, tok platform.Tokens, m *domain.Material, groupID string, checkpoint Checkpoint) (Publication, error) {
	if checkpoint == nil {
		checkpoint = noCheckpoint
	}
	if err := checkpoint(); err != nil {
		return Publication{}, err
	}
	photoIDs, err := p.uploadPhotos(ctx, s, tok, m.PhotoPaths)
	if err != nil {
		return Publication{}, err
	}
	if len(m.PhotoPaths) > 0 && len(photoIDs) == 0 {
		return Publication{}, ErrNoPhotosUploaded
	}
	if err := checkpoint(); err != nil {
		return Publication{}, err
	}

	coords := platform.ResolveCoordinates(m, p.lookupLocation, p.opts.Fallback)
	listing := platform.BuildListing(m, p.opts.Catalog, coords, false)
	body, err := p.remote.Call(ctx, s, tok, platform.OpGroupPost, platform.GroupPostVariables(tok.ActorID, groupID, listing, photoIDs))
	if err != nil {
		return Publication{}, phaseError("group post failed", err)
	}
	ref, status := platform.DecodeGroupPost(body, platform.FieldStoryCreate)
	if status != platform.Found {
		return Publication{}, &domain.RemoteMutationError{Stage: "group post failed", Message: "no post reference in response"}
	}
	url := ref.URL
	if url == "" {
		url = platform.GroupPostURL(p.opts.BaseURL, groupID, ref.ID)
	}
	return Publication{ListingID: ref.ID, URL: url, Photos: len(photoIDs)}, nil
}

// uploadPhotos uploads sequentially with a random gap. A failed file is
// logged and skipped.
func (p *Publisher) uploadPhotos(ctx context.Context, s session.Session, tok platform.Tokens, paths []string) ([]string, error) {
	ids := make([]string, 0, len(paths))
	for i, path := range paths {
		if i > 0 {
			if err := p.sleep(ctx, p.jitter.between(p.opts.UploadGap.Min, p.opts.UploadGap.Max)); err != nil {
				return nil, err
			}
		}
		id, err := p.uploader.Upload(ctx, s, tok, path)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn("Photo upload failed, skipping",
				zap.String("file", filepath.Base(path)),
				zap.Error(err))
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (p *Publisher) publishDirect(ctx context.Context, s session.Session, tok platform.Tokens, l platform.Listing, photoIDs []string, checkpoint Checkpoint) (Publication, error) {
	if err := checkpoint(); err != nil {
		return Publication{}, err
	}
	body, err := p.remote.Call(ctx, s, tok, platform.OpCreateListing, platform.CreateVariables(tok.ActorID, l, photoIDs, false))
	if err != nil {
		return Publication{}, err
	}
	ref, status := platform.DecodeListingMutation(body, platform.FieldCreate)
	if status != platform.Found {
		return Publication{}, &domain.RemoteMutationError{Message: "no listing reference in response"}
	}
	return p.publication(ref), nil
}

// publishViaDraft creates a draft, re-saves it with permanent photo ids only and
// then launches it. A failed phase stops the sequence.
func (p *Publisher) publishViaDraft(ctx context.Context, s session.Session, tok platform.Tokens, l platform.Listing, photoIDs []string, checkpoint Checkpoint) (Publication, error) {
	if err := checkpoint(); err != nil {
		return Publication{}, err
	}
	body, err := p.remote.Call(ctx, s, tok, platform.OpCreateListing, platform.CreateVariables(tok.ActorID, l, photoIDs, true))
	if err != nil {
		return Publication{}, phaseError("draft failed", err)
	}
	draft, status := platform.DecodeListingMutation(body, platform.FieldCreate)
	if status != platform.Found || draft.ID == "" {
		return Publication{}, &domain.RemoteMutationError{Stage: "draft failed", Message: "no listing id in response"}
	}

	if err := p.sleep(ctx, p.opts.SettleDelay); err != nil {
		return Publication{}, err
	}
	if err := checkpoint(); err != nil {
		return Publication{}, err
	}
	if _, err := p.remote.Call(ctx, s, tok, platform.OpEditListing, platform.EditVariables(tok.ActorID, draft.ID, l, draft.PhotoIDs)); err != nil {
		return Publication{}, phaseError("save failed", err)
	}

	if err := p.sleep(ctx, p.opts.LaunchDelay); err != nil {
		return Publication{}, err
	}
	if err := checkpoint(); err != nil {
		return Publication{}, err
	}
	if _, err := p.remote.Call(ctx, s, tok, platform.OpPublishDraft, platform.PublishDraftVariables(tok.ActorID, draft.ID)); err != nil {
		return Publication{}, phaseError("launch failed", err)
	}
	return p.publication(draft), nil
}

func (p *Publisher) publication(ref platform.ListingRef) Publication {
	url := ref.URL
	if url == "" {
		url = platform.ListingURL(p.opts.BaseURL, ref.ID)
	}
	return Publication{ListingID: ref.ID, URL: url}
}

// phaseError tags err with the publish phase, keeping a remote message verbatim.
func phaseError(stage string, err error) error {
	var remote *domain.RemoteMutationError
	if errors.As(err, &remote) {
		return &domain.RemoteMutationError{Stage: stage, Message: remote.Message}
	}
	return &domain.RemoteMutationError{Stage: stage, Message: err.Error()}
}
