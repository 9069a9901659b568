// Package rest expose l'API HTTP du compte : routes de fédération (pairs) et routes propriétaire.
package rest

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/lo"

	"github.com/wheaney/social-freedom-sub000/internal/adapters/wire"
	"github.com/wheaney/social-freedom-sub000/internal/core/domain"
	"github.com/wheaney/social-freedom-sub000/internal/core/ports"
)

type Server struct {
	follow   ports.FollowService
	fanout   ports.FanoutService
	query    ports.QueryService
	verifier ports.IdentityVerifier
}

func NewServer(follow ports.FollowService, fanout ports.FanoutService, query ports.QueryService, verifier ports.IdentityVerifier) *Server {
	return &Server{follow: follow, fanout: fanout, query: query, verifier: verifier}
}

// Router construit le moteur gin avec toutes les routes.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger())

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/identity", s.Identity)

	auth := r.Group("/", RequireAuth(s.verifier))
	{
		fed := auth.Group("/federation")
		fed.POST("/follow-request", s.ReceiveFollowRequest)
		fed.POST("/follow-request-response", s.ReceiveFollowResponse)

		auth.POST("/follow-requests", s.SendFollowRequest)
		auth.POST("/follow-requests/:userId/accept", s.respond(true))
		auth.POST("/follow-requests/:userId/reject", s.respond(false))
		auth.GET("/relationships/:set", s.Members)
		auth.PUT("/settings/public", s.SetPublic)
		auth.PUT("/profile", s.UpdateProfile)
		auth.POST("/posts", s.CreatePost)
		auth.GET("/posts", s.ListPosts)
		auth.GET("/feed", s.ListFeed)
	}
	return r
}

// --- FÉDÉRATION ---

func (s *Server) ReceiveFollowRequest(c *gin.Context) {
	req, ok := decodeBody[wire.FollowRequest](c)
	if !ok {
		return
	}
	resp, err := s.follow.ReceiveFollowRequest(c.Request.Context(), Caller(c), req.ToDomain())
	if err != nil {
		writeError(c, err)
		return
	}
	if resp == nil {
		c.JSON(http.StatusAccepted, wire.Submitted{Status: wire.StatusSubmitted})
		return
	}
	c.JSON(http.StatusOK, wire.FromFollowResponse(resp))
}

// ReceiveFollowResponse reçoit le verdict différé d'une cible : l'appelant est la cible.
func (s *Server) ReceiveFollowResponse(c *gin.Context) {
	resp, ok := decodeBody[wire.FollowResponse](c)
	if !ok {
		return
	}
	if err := s.follow.HandleFollowResponse(c.Request.Context(), Caller(c).UserID, resp.ToDomain()); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- PROPRIÉTAIRE ---

func (s *Server) SendFollowRequest(c *gin.Context) {
	req, ok := decodeBody[wire.SendFollowRequest](c)
	if !ok {
		return
	}
	peer := domain.PeerRef{UserID: req.UserID, APIOrigin: req.APIOrigin}
	if err := s.follow.SendFollowRequest(c.Request.Context(), Caller(c), peer); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, wire.Submitted{Status: wire.StatusSubmitted})
}

func (s *Server) respond(accept bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		requesterID := c.Param("userId")
		if err := s.follow.RespondToFollowRequest(c.Request.Context(), Caller(c), requesterID, accept); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func (s *Server) Members(c *gin.Context) {
	members, err := s.follow.Members(c.Request.Context(), Caller(c), domain.SetName(c.Param("set")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, wire.Members{
		Set:      string(members.Set),
		UserIDs:  members.UserIDs,
		Accounts: wire.FromAccounts(members.Accounts),
	})
}

func (s *Server) SetPublic(c *gin.Context) {
	req, ok := decodeBody[wire.SetPublic](c)
	if !ok {
		return
	}
	if err := s.follow.SetPublic(c.Request.Context(), Caller(c), *req.Public); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) UpdateProfile(c *gin.Context) {
	req, ok := decodeBody[wire.UpdateProfile](c)
	if !ok {
		return
	}
	updated, err := s.fanout.UpdateProfile(c.Request.Context(), Caller(c), req.DisplayName, req.PhotoURL)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, wire.FromAccount(*updated))
}

func (s *Server) CreatePost(c *gin.Context) {
	req, ok := decodeBody[wire.CreatePost](c)
	if !ok {
		return
	}
	post, err := s.fanout.CreatePost(c.Request.Context(), Caller(c), domain.PostType(req.Type), req.Body, req.MediaURL)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, wire.FromPost(post))
}

func (s *Server) ListPosts(c *gin.Context) {
	page, err := s.query.ListPosts(c.Request.Context(), pageRequest(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, wire.Page[wire.Post]{
		Items:      lo.Map(page.Items, func(p *domain.Post, _ int) wire.Post { return wire.FromPost(p) }),
		NextCursor: page.NextCursor,
		Accounts:   wire.FromAccounts(page.Accounts),
	})
}

func (s *Server) ListFeed(c *gin.Context) {
	page, err := s.query.ListFeed(c.Request.Context(), pageRequest(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, wire.Page[wire.FeedEntry]{
		Items:      lo.Map(page.Items, func(e *domain.FeedEntry, _ int) wire.FeedEntry { return wire.FromFeedEntry(e) }),
		NextCursor: page.NextCursor,
		Accounts:   wire.FromAccounts(page.Accounts),
	})
}

// --- PUBLIC ---

func (s *Server) Identity(c *gin.Context) {
	self, err := s.query.Identity(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, wire.FromAccount(self))
}

// --- Helpers ---

func decodeBody[T any](c *gin.Context) (*T, bool) {
	raw, err := c.GetRawData()
	if err != nil {
		writeError(c, domain.Malformed(err))
		return nil, false
	}
	v, err := wire.Decode[T](raw)
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	return v, true
}

// pageRequest accepte cachedUserIds répété ou séparé par des virgules.
func pageRequest(c *gin.Context) domain.PageRequest {
	cached := lo.FlatMap(c.QueryArray("cachedUserIds"), func(v string, _ int) []string {
		return strings.Split(v, ",")
	})
	cached = lo.Compact(lo.Map(cached, func(v string, _ int) string { return strings.TrimSpace(v) }))
	return domain.PageRequest{
		Caller:        Caller(c).UserID,
		Cursor:        c.Query("cursor"),
		CachedUserIDs: cached,
	}
}
