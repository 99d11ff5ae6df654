package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/PravakarDas/YT-Playlist-Downloader/internal/job"
)

type playlistInfoRequest struct {
	URL string `json:"url"`
}

type playlistEntryResponse struct {
	Index     int    `json:"index"`
	Title     string `json:"title"`
	Thumbnail string `json:"thumbnail,omitempty"`
}

type createJobRequest struct {
	URL     string `json:"url"`
	Format  string `json:"format"`
	Quality string `json:"quality"`
	Indices []int  `json:"indices"`
}

type itemResponse struct {
	Index    int    `json:"index"`
	Title    string `json:"title"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Error    string `json:"error,omitempty"`
}

type progressResponse struct {
	ID            string         `json:"id"`
	Status        string         `json:"status"`
	PlaylistTitle string         `json:"playlist_title"`
	Error         string         `json:"error,omitempty"`
	CreatedAt     string         `json:"created_at"`
	Items         []itemResponse `json:"items"`
}

// API is the HTTP boundary over the job façade. Everything stateful lives in
// the job manager; handlers only translate requests and owner cookies.
type API struct {
	jobs     *job.Manager
	fetcher  job.Fetcher
	ownerTTL time.Duration
}

func NewAPI(jobs *job.Manager, fetcher job.Fetcher, ownerTTL time.Duration) *API {
	return &API{jobs: jobs, fetcher: fetcher, ownerTTL: ownerTTL}
}

// RegisterRoutes registers API routes on the provided gin engine.
func (a *API) RegisterRoutes(router *gin.Engine) {
	router.GET("/", a.Home)
	api := router.Group("/api/v1")
	{
		api.POST("/playlist-info", a.PlaylistInfo)
		api.POST("/jobs", a.CreateJob)
		api.GET("/jobs/:id", a.GetProgress)
		api.GET("/jobs/:id/archive", a.DownloadArchive)
		api.DELETE("/session", a.EndSession)
	}
}

// Home rotates the session: jobs of the previous owner key are evicted and a
// fresh key is issued. A page refresh therefore clears the client's data.
func (a *API) Home(c *gin.Context) {
	if old, ok := ownerKey(c); ok {
		a.jobs.EvictOwner(old)
	}
	key := newOwnerKey()
	a.setOwnerCookie(c, key, int(a.ownerTTL.Seconds()))
	c.JSON(http.StatusOK, gin.H{"ok": true, "service": "yt-playlist-downloader"})
}

// PlaylistInfo returns ordered playlist metadata for a URL.
func (a *API) PlaylistInfo(c *gin.Context) {
	var req playlistInfoRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.URL) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "no url provided"})
		return
	}
	info, err := a.fetcher.Playlist(c.Request.Context(), strings.TrimSpace(req.URL))
	if err != nil {
		log.Warn().Str("url", req.URL).Err(err).Msg("playlist info failed")
		c.JSON(http.StatusBadGateway, gin.H{"ok": false, "error": err.Error()})
		return
	}
	entries := make([]playlistEntryResponse, 0, len(info.Entries))
	for _, e := range info.Entries {
		entries = append(entries, playlistEntryResponse{Index: e.Index, Title: e.Title, Thumbnail: e.ThumbnailURL})
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "playlist_title": info.Title, "videos": entries})
}

// CreateJob starts a batch download for the selected playlist indices.
func (a *API) CreateJob(c *gin.Context) {
	owner, ok := ownerKey(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "missing client id (refresh the page)"})
		return
	}
	var req createJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid request"})
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "no playlist url provided"})
		return
	}

	opts := job.ConvertOptions{
		Format:  job.Format(strings.ToLower(req.Format)),
		Quality: job.Quality(strings.ToLower(req.Quality)),
	}
	id, err := a.jobs.CreateJob(owner, strings.TrimSpace(req.URL), req.Indices, opts)
	if err != nil {
		if errors.Is(err, job.ErrNoSelection) || errors.Is(err, job.ErrNoOwner) {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
			return
		}
		status := http.StatusBadGateway
		if strings.Contains(err.Error(), "not present in playlist") {
			status = http.StatusBadRequest
		}
		log.Warn().Str("owner", owner).Err(err).Msg("create job failed")
		c.JSON(status, gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ok": true, "job_id": id})
}

// GetProgress returns a snapshot of the job for polling clients.
func (a *API) GetProgress(c *gin.Context) {
	owner, ok := ownerKey(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "missing client id"})
		return
	}
	snap, err := a.jobs.GetProgress(c.Param("id"))
	if err != nil || snap.OwnerKey != owner {
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "invalid job id"})
		return
	}
	c.JSON(http.StatusOK, toProgressResponse(snap))
}

// DownloadArchive streams the finished archive.
func (a *API) DownloadArchive(c *gin.Context) {
	owner, ok := ownerKey(c)
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"ok": false, "error": "missing client id"})
		return
	}
	id := c.Param("id")
	snap, err := a.jobs.GetProgress(id)
	if err != nil || snap.OwnerKey != owner {
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "invalid job id"})
		return
	}
	path, err := a.jobs.GetArchive(id)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"ok": false, "error": "archive not ready"})
		return
	}
	log.Info().Str("job_id", id).Str("path", path).Msg("serving archive download")
	c.FileAttachment(path, id+".zip")
}

// EndSession evicts everything the calling client owns. Fire-and-forget.
func (a *API) EndSession(c *gin.Context) {
	if owner, ok := ownerKey(c); ok {
		a.jobs.EvictOwner(owner)
	}
	a.setOwnerCookie(c, "", -1)
	c.Status(http.StatusNoContent)
}

func toProgressResponse(snap job.Job) progressResponse {
	resp := progressResponse{
		ID:            snap.ID,
		Status:        string(snap.Status),
		PlaylistTitle: snap.PlaylistTitle,
		Error:         snap.Error,
		CreatedAt:     snap.CreatedAt.UTC().Format(time.RFC3339),
		Items:         make([]itemResponse, 0, len(snap.Items)),
	}
	for _, it := range snap.Items {
		resp.Items = append(resp.Items, itemResponse{
			Index:    it.Index,
			Title:    it.Title,
			Status:   string(it.Status),
			Progress: it.Progress,
			Error:    it.Error,
		})
	}
	return resp
}
