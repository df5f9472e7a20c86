// package resolver reconciles raw (artist, album, track) names against the
// local catalog, creating rows from provider metadata when nothing matches.
//
// Resolution is layered, each step short-circuiting on success:
// stable ID, exact case-insensitive name, fuzzy similarity, provider
// correction lookup, create. The engine never blocks ingestion on
// enrichment: when every external lookup fails it falls back to a
// minimal name-only row.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/relisten/internal/models"
	"github.com/desertthunder/relisten/internal/repositories"
	"github.com/desertthunder/relisten/internal/services"
	"github.com/desertthunder/relisten/internal/shared"
)

const (
	// matchThreshold accepts near-identical variants (case, trailing
	// whitespace, minor punctuation).
	matchThreshold = 0.90
	// correctionThreshold applies only after the provider has already
	// vouched for a corrected spelling.
	correctionThreshold = 0.80
)

// Opts configures a Resolver.
type Opts struct {
	// Provider supplies metadata lookups and name corrections. May be
	// nil, in which case unresolved entities go straight to fallback rows.
	Provider services.MetadataProvider
	Matcher  Matcher
	Logger   *log.Logger
	// AddMissing controls whether unresolved entities are created.
	// When false the resolver reports [shared.ErrUnresolved] instead.
	AddMissing bool
}

// Resolver maps raw names to catalog identifiers. One Resolver serves one
// sync run: it memoizes results so resolving the same (name, mbid) twice
// in a run always yields the same identifier without re-querying.
type Resolver struct {
	artists    *repositories.ArtistRepository
	albums     *repositories.AlbumRepository
	tracks     *repositories.TrackRepository
	provider   services.MetadataProvider
	matcher    Matcher
	logger     *log.Logger
	addMissing bool
	memo       map[string]string
}

// New creates a Resolver over the given repositories.
func New(artists *repositories.ArtistRepository, albums *repositories.AlbumRepository, tracks *repositories.TrackRepository, opts Opts) *Resolver {
	if opts.Matcher == nil {
		opts.Matcher = NewMatcher()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	return &Resolver{
		artists:    artists,
		albums:     albums,
		tracks:     tracks,
		provider:   opts.Provider,
		matcher:    opts.Matcher,
		logger:     opts.Logger,
		addMissing: opts.AddMissing,
		memo:       make(map[string]string),
	}
}

// ResolveArtist returns the catalog identifier for an artist name,
// creating a row when no existing one matches.
func (r *Resolver) ResolveArtist(ctx context.Context, name, mbid string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: empty artist name", shared.ErrInvalidInput)
	}

	memoKey := "artist\x00" + strings.ToLower(name)
	if id, ok := r.memo[memoKey]; ok {
		return id, nil
	}

	if artist := r.findArtist(name, mbid, matchThreshold); artist != nil {
		r.memo[memoKey] = artist.ID
		return artist.ID, nil
	}

	// ask the provider for its canonical spelling and retry the chain
	createName, createMBID := name, mbid
	if r.provider != nil {
		corr, err := r.provider.ArtistCorrection(ctx, name)
		switch {
		case err == nil:
			if createMBID == "" {
				createMBID = corr.MBID
			}
			createName = corr.Name
			if artist := r.findArtist(corr.Name, createMBID, correctionThreshold); artist != nil {
				r.memo[memoKey] = artist.ID
				return artist.ID, nil
			}
		case !errors.Is(err, shared.ErrNotFound):
			r.logger.Warnf("artist correction lookup failed for %q: %v", name, err)
		}
	}

	if !r.addMissing {
		return "", fmt.Errorf("%w: artist %q", shared.ErrUnresolved, name)
	}

	id, err := r.createArtist(ctx, createName, createMBID)
	if err != nil {
		return "", err
	}

	r.memo[memoKey] = id
	return id, nil
}

// findArtist runs the lookup chain (stable ID, exact name, fuzzy) and
// applies in-place MBID enrichment on the matched row only.
func (r *Resolver) findArtist(name, mbid string, threshold float64) *models.Artist {
	if mbid != "" {
		if artist, err := r.artists.GetByMBID(mbid); err == nil {
			return artist
		}
	}

	if artist, err := r.artists.GetByName(name); err == nil {
		r.enrichArtist(artist, mbid)
		return artist
	}

	all, err := r.artists.All()
	if err != nil {
		r.logger.Warnf("failed to list artists for fuzzy match: %v", err)
		return nil
	}

	candidates := make([]Candidate, 0, len(all))
	byID := make(map[string]*models.Artist, len(all))
	for _, a := range all {
		// protected rows are matched exactly or not at all
		if a.Provenance.Protected() {
			continue
		}
		candidates = append(candidates, Candidate{ID: a.ID, Name: a.Name})
		byID[a.ID] = a
	}

	if best, score, ok := r.matcher.Best(name, candidates); ok && score >= threshold {
		artist := byID[best.ID]
		r.enrichArtist(artist, mbid)
		return artist
	}

	return nil
}

// enrichArtist backfills a newly learned MBID onto the matched row.
// Protected rows and rows that already carry an MBID are left alone.
func (r *Resolver) enrichArtist(artist *models.Artist, mbid string) {
	if mbid == "" || artist.MBID != "" || artist.Provenance.Protected() {
		return
	}

	artist.MBID = mbid
	if err := r.artists.Update(artist); err != nil {
		r.logger.Warnf("failed to backfill artist mbid for %q: %v", artist.Name, err)
	}
}

// createArtist inserts a new artist row, preferring the full provider
// metadata snapshot and degrading to a minimal fallback row.
func (r *Resolver) createArtist(ctx context.Context, name, mbid string) (string, error) {
	artist := &models.Artist{
		Name:       name,
		MBID:       mbid,
		Provenance: models.ProvenanceFallback,
	}

	if r.provider != nil {
		info, err := r.provider.ArtistInfo(ctx, name, mbid)
		switch {
		case err == nil:
			artist.Name = info.Name
			if artist.MBID == "" {
				artist.MBID = info.MBID
			}
			artist.Bio = info.Bio
			artist.Tags = strings.Join(info.Tags, ", ")
			artist.Similar = strings.Join(info.Similar, ", ")
			artist.Provenance = models.ProvenanceSync
		case errors.Is(err, shared.ErrNotFound):
			// provider has no record, keep the fallback row
		default:
			r.logger.Warnf("artist info lookup failed for %q, creating fallback row: %v", name, err)
		}
	}

	if err := r.artists.Create(artist); err != nil {
		return "", fmt.Errorf("failed to create artist %q: %w", name, err)
	}

	r.logger.Debugf("created artist %q (%s)", artist.Name, artist.Provenance)
	return artist.ID, nil
}

// ResolveAlbum returns the catalog identifier for an album scoped to its
// owning artist, creating a row when no existing one matches.
func (r *Resolver) ResolveAlbum(ctx context.Context, name, artistID, artistName, mbid string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || artistID == "" {
		return "", fmt.Errorf("%w: album requires name and artist", shared.ErrInvalidInput)
	}

	memoKey := "album\x00" + artistID + "\x00" + strings.ToLower(name)
	if id, ok := r.memo[memoKey]; ok {
		return id, nil
	}

	if album := r.findAlbum(name, artistID, mbid); album != nil {
		r.memo[memoKey] = album.ID
		return album.ID, nil
	}

	if !r.addMissing {
		return "", fmt.Errorf("%w: album %q", shared.ErrUnresolved, name)
	}

	id, err := r.createAlbum(ctx, name, artistID, artistName, mbid)
	if err != nil {
		return "", err
	}

	r.memo[memoKey] = id
	return id, nil
}

func (r *Resolver) findAlbum(name, artistID, mbid string) *models.Album {
	if mbid != "" {
		if album, err := r.albums.GetByMBID(mbid); err == nil {
			return album
		}
	}

	if album, err := r.albums.GetByName(artistID, name); err == nil {
		r.enrichAlbum(album, mbid)
		return album
	}

	scope, err := r.albums.ListByArtist(artistID)
	if err != nil {
		r.logger.Warnf("failed to list albums for fuzzy match: %v", err)
		return nil
	}

	candidates := make([]Candidate, 0, len(scope))
	byID := make(map[string]*models.Album, len(scope))
	for _, a := range scope {
		if a.Provenance.Protected() {
			continue
		}
		candidates = append(candidates, Candidate{ID: a.ID, Name: a.Name})
		byID[a.ID] = a
	}

	if best, score, ok := r.matcher.Best(name, candidates); ok && score >= matchThreshold {
		album := byID[best.ID]
		r.enrichAlbum(album, mbid)
		return album
	}

	return nil
}

func (r *Resolver) enrichAlbum(album *models.Album, mbid string) {
	if mbid == "" || album.MBID != "" || album.Provenance.Protected() {
		return
	}

	album.MBID = mbid
	if err := r.albums.Update(album); err != nil {
		r.logger.Warnf("failed to backfill album mbid for %q: %v", album.Name, err)
	}
}

func (r *Resolver) createAlbum(ctx context.Context, name, artistID, artistName, mbid string) (string, error) {
	album := &models.Album{
		Name:       name,
		ArtistID:   artistID,
		MBID:       mbid,
		Provenance: models.ProvenanceFallback,
	}

	if r.provider != nil && artistName != "" {
		info, err := r.provider.AlbumInfo(ctx, artistName, name)
		switch {
		case err == nil:
			album.Name = info.Name
			if album.MBID == "" {
				album.MBID = info.MBID
			}
			album.Year = info.Year
			album.Provenance = models.ProvenanceSync
		case errors.Is(err, shared.ErrNotFound):
		default:
			r.logger.Warnf("album info lookup failed for %q, creating fallback row: %v", name, err)
		}
	}

	if err := r.albums.Create(album); err != nil {
		return "", fmt.Errorf("failed to create album %q: %w", name, err)
	}

	r.logger.Debugf("created album %q (%s)", album.Name, album.Provenance)
	return album.ID, nil
}

// ResolveTrack returns the catalog identifier for a track scoped by
// artist name, creating a row when no existing one matches.
func (r *Resolver) ResolveTrack(ctx context.Context, title, artistName, albumName, mbid string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" || artistName == "" {
		return "", fmt.Errorf("%w: track requires title and artist", shared.ErrInvalidInput)
	}

	memoKey := "track\x00" + strings.ToLower(artistName) + "\x00" + strings.ToLower(title)
	if id, ok := r.memo[memoKey]; ok {
		return id, nil
	}

	if track := r.findTrack(title, artistName, mbid); track != nil {
		r.memo[memoKey] = track.ID
		return track.ID, nil
	}

	if !r.addMissing {
		return "", fmt.Errorf("%w: track %q", shared.ErrUnresolved, title)
	}

	id, err := r.createTrack(ctx, title, artistName, albumName, mbid)
	if err != nil {
		return "", err
	}

	r.memo[memoKey] = id
	return id, nil
}

func (r *Resolver) findTrack(title, artistName, mbid string) *models.Track {
	if mbid != "" {
		if track, err := r.tracks.GetByMBID(mbid); err == nil {
			return track
		}
	}

	if track, err := r.tracks.GetByTitle(artistName, title); err == nil {
		r.enrichTrack(track, mbid)
		return track
	}

	scope, err := r.tracks.ListByArtist(artistName)
	if err != nil {
		r.logger.Warnf("failed to list tracks for fuzzy match: %v", err)
		return nil
	}

	candidates := make([]Candidate, 0, len(scope))
	byID := make(map[string]*models.Track, len(scope))
	for _, t := range scope {
		if t.Provenance.Protected() {
			continue
		}
		candidates = append(candidates, Candidate{ID: t.ID, Name: t.Title})
		byID[t.ID] = t
	}

	if best, score, ok := r.matcher.Best(title, candidates); ok && score >= matchThreshold {
		track := byID[best.ID]
		r.enrichTrack(track, mbid)
		return track
	}

	return nil
}

func (r *Resolver) enrichTrack(track *models.Track, mbid string) {
	if mbid == "" || track.MBID != "" || track.Provenance.Protected() {
		return
	}

	track.MBID = mbid
	if err := r.tracks.Update(track); err != nil {
		r.logger.Warnf("failed to backfill track mbid for %q: %v", track.Title, err)
	}
}

func (r *Resolver) createTrack(ctx context.Context, title, artistName, albumName, mbid string) (string, error) {
	track := &models.Track{
		Title:      title,
		Artist:     artistName,
		Album:      albumName,
		MBID:       mbid,
		Provenance: models.ProvenanceFallback,
	}

	if r.provider != nil {
		info, err := r.provider.TrackInfo(ctx, artistName, title)
		switch {
		case err == nil:
			track.Title = info.Name
			if track.MBID == "" {
				track.MBID = info.MBID
			}
			if track.Album == "" {
				track.Album = info.Album
			}
			track.Provenance = models.ProvenanceSync
		case errors.Is(err, shared.ErrNotFound):
		default:
			r.logger.Warnf("track info lookup failed for %q, creating fallback row: %v", title, err)
		}
	}

	if err := r.tracks.Create(track); err != nil {
		return "", fmt.Errorf("failed to create track %q: %w", title, err)
	}

	r.logger.Debugf("created track %q (%s)", track.Title, track.Provenance)
	return track.ID, nil
}
