package api

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/david/donorflow/internal/auth"
	"github.com/david/donorflow/internal/db"
	"github.com/david/donorflow/internal/models"
	"github.com/david/donorflow/internal/sources"
	"github.com/david/donorflow/internal/workflow"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type Server struct {
	Echo        *echo.Echo
	DB          *pgxpool.Pool
	AuthService *auth.Service

	Events     *db.EventStore
	States     *db.StateStore
	Visions    *db.VisionStore
	Candidates *db.CandidateStore
	Offers     *db.OfferStore

	Adapter      *sources.Adapter
	Enricher     *sources.Enricher
	Orchestrator *workflow.Orchestrator
}

var (
	adminSecretOnce    sync.Once
	adminSecretRuntime string
	adminSecretErr     error
)

func NewServer(pool *pgxpool.Pool) *Server {
	e := echo.New()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	// CORS: allow frontend origins from env or default to localhost
	allowedOrigins := []string{"http://localhost:4200"}
	if extra := os.Getenv("CORS_ORIGINS"); extra != "" {
		for _, o := range strings.Split(extra, ",") {
			o = strings.TrimSpace(o)
			if o != "" {
				allowedOrigins = append(allowedOrigins, o)
			}
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: allowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "X-Admin-Secret"},
	}))

	events := db.NewEventStore(pool)
	states := db.NewStateStore(pool)
	visions := db.NewVisionStore(pool)
	candidates := db.NewCandidateStore(pool)
	offers := db.NewOfferStore(pool)
	collab := db.NewCollabStore(pool)
	adapter := sources.NewAdapter(candidates)

	s := &Server{
		Echo:        e,
		DB:          pool,
		AuthService: auth.NewService(pool),
		Events:      events,
		States:      states,
		Visions:     visions,
		Candidates:  candidates,
		Offers:      offers,
		Adapter:     adapter,
		Enricher:    sources.NewEnricher(sources.NewCollyFetcher()),
		Orchestrator: workflow.NewOrchestrator(
			events, states, visions, adapter, offers, collab,
		),
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.Echo.GET("/health", s.handleHealth)
	api := s.Echo.Group("/api/v1")

	// Auth
	api.POST("/auth/signup", s.handleSignup)
	api.POST("/auth/login", s.handleLogin)

	// Admin
	admin := api.Group("")
	admin.Use(s.adminMiddleware)
	admin.POST("/seed", s.handleSeed)

	// Authenticated
	authed := api.Group("")
	authed.Use(auth.Middleware)
	authed.GET("/opportunities", s.handleListOpportunities)
	authed.GET("/events", s.handleListEvents)
	authed.GET("/pipeline", s.handlePipeline)
	authed.POST("/opportunities/:key/stage", s.handleAdvanceStage)
	authed.POST("/requests", s.handleCreateRequest)

	// Donor-only surface
	donor := authed.Group("")
	donor.Use(auth.RequireRole(auth.RoleDonor))
	donor.GET("/vision", s.handleGetVision)
	donor.PUT("/vision", s.handlePutVision)
	donor.POST("/opportunities/:key/actions", s.handleRecordAction)
	donor.POST("/opportunities/links", s.handleSubmitLink)
	donor.POST("/review", s.handleRunReview)
	donor.POST("/offers", s.handleCreateOffer)
	donor.GET("/offers", s.handleListOffers)
	donor.POST("/offers/:id/status", s.handleAdvanceOffer)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

func (s *Server) handleSignup(c echo.Context) error {
	var req auth.SignupRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	resp, err := s.AuthService.Signup(c.Request().Context(), req)
	if err != nil {
		if err == auth.ErrUserExists {
			return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
		}
		if err == auth.ErrInvalidRole {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusCreated, resp)
}

func (s *Server) handleLogin(c echo.Context) error {
	var req auth.LoginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	resp, err := s.AuthService.Login(c.Request().Context(), req)
	if err != nil {
		if err == auth.ErrInvalidCreds {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid credentials"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, resp)
}

// workflowError maps orchestrator sentinels onto HTTP responses. Anything
// unrecognized is a 500 with a generic body; details go to the log only.
func workflowError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, workflow.ErrValidation):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, workflow.ErrForbidden):
		return c.JSON(http.StatusForbidden, map[string]string{"error": "forbidden"})
	case errors.Is(err, workflow.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, workflow.ErrGuardViolation), errors.Is(err, workflow.ErrConflict):
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	}
	c.Logger().Errorf("workflow error: %v", err)
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
}

func actorFromContext(c echo.Context) (workflow.Actor, error) {
	id, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return workflow.Actor{}, err
	}
	role, err := auth.GetRoleFromContext(c)
	if err != nil {
		return workflow.Actor{}, err
	}
	return workflow.Actor{ID: id, Role: role}, nil
}

func (s *Server) handleGetVision(c echo.Context) error {
	donorID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}

	vision, err := s.Visions.Get(c.Request().Context(), donorID)
	if err != nil {
		if errors.Is(err, db.ErrVisionNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "no vision yet"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, vision)
}

func (s *Server) handlePutVision(c echo.Context) error {
	donorID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}

	var vision models.Vision
	if err := c.Bind(&vision); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if len(vision.Pillars) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "at least one pillar is required"})
	}
	if vision.Budget < 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "budget cannot be negative"})
	}
	vision.DonorID = donorID

	if err := s.Visions.Upsert(c.Request().Context(), &vision, time.Now()); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, vision)
}

func (s *Server) handleListOpportunities(c echo.Context) error {
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}

	candidates, err := s.Adapter.ListForDonor(c.Request().Context(), userID)
	if err != nil {
		c.Logger().Errorf("list candidates: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}
	if candidates == nil {
		candidates = []models.OpportunityCandidate{}
	}
	return c.JSON(http.StatusOK, candidates)
}

func (s *Server) handleSubmitLink(c echo.Context) error {
	donorID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}

	var link models.SubmittedLink
	if err := c.Bind(&link); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if !strings.HasPrefix(link.URL, "http://") && !strings.HasPrefix(link.URL, "https://") {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "url must be http(s)"})
	}
	link.DonorID = donorID
	link.Title = sources.SanitizeText(link.Title)
	link.Summary = sources.SanitizeText(link.Summary)
	link.Category = sources.SanitizeText(link.Category)
	link.Location = sources.SanitizeText(link.Location)

	// Best-effort page preview for fields the donor left blank.
	s.Enricher.Enrich(c.Request().Context(), &link)

	if err := s.Candidates.CreateSubmittedLink(c.Request().Context(), &link); err != nil {
		c.Logger().Errorf("create submitted link: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}
	return c.JSON(http.StatusCreated, sources.CandidateFromLink(link))
}

func (s *Server) handleCreateRequest(c echo.Context) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}
	if actor.Role != auth.RoleRequestor {
		return c.JSON(http.StatusForbidden, map[string]string{"error": "only requestors create funding requests"})
	}

	var req models.FundingRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if req.Title == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "title is required"})
	}
	if req.AmountGoal <= 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "amount_goal must be positive"})
	}
	if req.AmountRaised < 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "amount_raised cannot be negative"})
	}
	req.CreatorID = actor.ID
	req.Title = sources.SanitizeText(req.Title)
	req.Summary = sources.SanitizeText(req.Summary)
	req.Category = sources.SanitizeText(req.Category)
	req.Location = sources.SanitizeText(req.Location)

	if err := s.Candidates.CreateFundingRequest(c.Request().Context(), &req); err != nil {
		c.Logger().Errorf("create funding request: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}
	return c.JSON(http.StatusCreated, sources.CandidateFromRequest(req))
}

func (s *Server) handlePipeline(c echo.Context) error {
	donorID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}

	states, err := s.States.ListByDonor(c.Request().Context(), donorID)
	if err != nil {
		c.Logger().Errorf("list pipeline: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}
	if states == nil {
		states = []models.OpportunityState{}
	}
	return c.JSON(http.StatusOK, states)
}

func (s *Server) handleListEvents(c echo.Context) error {
	donorID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}

	ctx := c.Request().Context()
	var events []models.Event
	if key := c.QueryParam("key"); key != "" {
		events, err = s.Events.ListByPair(ctx, donorID, key)
	} else {
		limit := 0
		if l, perr := strconv.Atoi(c.QueryParam("limit")); perr == nil && l > 0 {
			limit = l
		}
		events, err = s.Events.ListByDonor(ctx, donorID, limit)
	}
	if err != nil {
		c.Logger().Errorf("list events: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}
	if events == nil {
		events = []models.Event{}
	}
	return c.JSON(http.StatusOK, events)
}

type actionRequest struct {
	Type    models.EventType `json:"type"`
	Payload json.RawMessage  `json:"payload"`
}

type actionResponse struct {
	EventID uuid.UUID    `json:"event_id"`
	State   models.State `json:"state"`
}

// handleRecordAction is the donor acting on their own pipeline.
func (s *Server) handleRecordAction(c echo.Context) error {
	donorID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}

	var req actionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	payload, err := models.DecodeEventPayload(req.Type, req.Payload)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	eventID, state, err := s.Orchestrator.RecordAction(c.Request().Context(), donorID, c.Param("key"), payload)
	if err != nil {
		return workflowError(c, err)
	}
	return c.JSON(http.StatusOK, actionResponse{EventID: eventID, State: state})
}

type stageResponse struct {
	State models.State `json:"state"`
}

// handleAdvanceStage is the ownership-checked path. Donors address their own
// pipeline; requestors address a donor's pipeline holding their request via
// the donor_id query parameter, and only for stages on requests they created.
func (s *Server) handleAdvanceStage(c echo.Context) error {
	actor, err := actorFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}

	var req actionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	payload, err := models.DecodeEventPayload(req.Type, req.Payload)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	donorID := actor.ID
	if actor.Role == auth.RoleRequestor {
		donorID, err = uuid.Parse(c.QueryParam("donor_id"))
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "donor_id query parameter is required"})
		}
	}

	state, err := s.Orchestrator.AdvanceStage(c.Request().Context(), actor, donorID, c.Param("key"), payload)
	if err != nil {
		return workflowError(c, err)
	}
	return c.JSON(http.StatusOK, stageResponse{State: state})
}

func (s *Server) handleRunReview(c echo.Context) error {
	donorID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}

	summary, err := s.Orchestrator.RunReview(c.Request().Context(), donorID)
	if err != nil {
		return workflowError(c, err)
	}
	return c.JSON(http.StatusOK, summary)
}

type createOfferRequest struct {
	OpportunityKey string `json:"opportunity_key"`
	workflow.OfferInput
}

func (s *Server) handleCreateOffer(c echo.Context) error {
	donorID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}

	var req createOfferRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if req.OpportunityKey == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "opportunity_key is required"})
	}

	offer, err := s.Orchestrator.CreateOffer(c.Request().Context(), donorID, req.OpportunityKey, req.OfferInput)
	if err != nil {
		return workflowError(c, err)
	}
	return c.JSON(http.StatusCreated, offer)
}

func (s *Server) handleListOffers(c echo.Context) error {
	donorID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}

	offers, err := s.Offers.ListByDonor(c.Request().Context(), donorID)
	if err != nil {
		c.Logger().Errorf("list offers: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}
	if offers == nil {
		offers = []models.LeverageOffer{}
	}
	return c.JSON(http.StatusOK, offers)
}

type advanceOfferRequest struct {
	Status models.OfferStatus `json:"status"`
}

func (s *Server) handleAdvanceOffer(c echo.Context) error {
	donorID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}

	offerID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid offer id"})
	}

	var req advanceOfferRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	offer, err := s.Orchestrator.AdvanceOffer(c.Request().Context(), donorID, offerID, req.Status)
	if err != nil {
		return workflowError(c, err)
	}
	return c.JSON(http.StatusOK, offer)
}

func (s *Server) handleSeed(c echo.Context) error {
	cat, err := sources.LoadCatalog(os.Getenv("CATALOG_PATH"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	n, err := s.Adapter.SeedCurated(c.Request().Context(), cat)
	if err != nil {
		c.Logger().Errorf("seed curated: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}
	return c.JSON(http.StatusOK, map[string]int{"seeded": n})
}

func (s *Server) Start(port string) error {
	return s.Echo.Start(":" + port)
}

func (s *Server) adminMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		secret, err := adminSecret()
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Server admin configuration error"})
		}

		authHeader := c.Request().Header.Get("Authorization")
		adminHeader := c.Request().Header.Get("X-Admin-Secret")

		if adminHeader == secret {
			return next(c)
		}
		if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
			if authHeader[7:] == secret {
				return next(c)
			}
		}

		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized admin access"})
	}
}

func adminSecret() (string, error) {
	adminSecretOnce.Do(func() {
		secret := strings.TrimSpace(os.Getenv("ADMIN_SECRET"))
		if secret != "" {
			adminSecretRuntime = secret
			return
		}

		buf := make([]byte, 48)
		if _, err := rand.Read(buf); err != nil {
			adminSecretErr = fmt.Errorf("failed to generate ADMIN_SECRET fallback: %w", err)
			return
		}

		adminSecretRuntime = base64.RawURLEncoding.EncodeToString(buf)
		log.Print("ADMIN_SECRET is not set; using ephemeral in-memory fallback secret")
	})

	if adminSecretErr != nil {
		return "", adminSecretErr
	}
	if adminSecretRuntime == "" {
		return "", fmt.Errorf("admin secret unavailable")
	}

	return adminSecretRuntime, nil
}
