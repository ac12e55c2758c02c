package profile

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"rps_arena/internal/bootstrap"
	"rps_arena/internal/delivery/auth"
	"rps_arena/internal/domain/user"
	"rps_arena/internal/httpresponse"
	"rps_arena/internal/report"
	profileuc "rps_arena/internal/usecase/profile"
	statsuc "rps_arena/internal/usecase/stats"
	"rps_arena/internal/utils"
)

type ProfileHandler struct {
	log          *zap.SugaredLogger
	profileUC    *profileuc.ProfileUseCase
	statsUC      *statsuc.StatsUseCase
	authHandler  *auth.AuthHandler
	clock        clockwork.Clock
	limitPlayers int
	limitGames   int
}

// ProfileView is a profile together with its derived stats.
type ProfileView struct {
	Profile user.Profile `json:"profile"`
	Stats   user.Stats   `json:"stats"`
}

func NewProfileHandler(cfg *bootstrap.Config, log *zap.SugaredLogger, profileUC *profileuc.ProfileUseCase, statsUC *statsuc.StatsUseCase, authHandler *auth.AuthHandler, clock clockwork.Clock) *ProfileHandler {
	return &ProfileHandler{
		log:          log,
		profileUC:    profileUC,
		statsUC:      statsUC,
		authHandler:  authHandler,
		clock:        clock,
		limitPlayers: cfg.PageLimitPlayers,
		limitGames:   cfg.PageLimitGames,
	}
}

func (p *ProfileHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID := p.authHandler.GetUserID(w, r)
	if userID == "" {
		return
	}
	prof, err := p.profileUC.Get(r.Context(), userID)
	if err != nil {
		p.writeError(w, "me", err)
		return
	}
	p.writeView(w, r, prof)
}

func (p *ProfileHandler) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	prof, ok := p.lookup(w, r)
	if !ok {
		return
	}
	p.writeView(w, r, prof)
}

// HandleUpdateProfile applies a partial edit of bio and avatar.
func (p *ProfileHandler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID := p.authHandler.GetUserID(w, r)
	if userID == "" {
		return
	}

	var upd profileuc.Update
	if err := utils.DecodeJSONRequest(r, &upd); err != nil {
		httpresponse.WriteResponseWithStatus(w, http.StatusBadRequest,
			httpresponse.ErrorResponse{ErrorDescription: httpresponse.MALFORMEDJSON_errorDesc})
		return
	}
	prof, err := p.profileUC.Update(r.Context(), userID, upd)
	if err != nil {
		p.writeError(w, "update profile", err)
		return
	}
	httpresponse.WriteResponseWithStatus(w, http.StatusOK, prof)
}

func (p *ProfileHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	prof, ok := p.lookup(w, r)
	if !ok {
		return
	}
	stats, err := p.statsUC.UserStats(r.Context(), prof.ID)
	if err != nil {
		p.writeError(w, "stats", err)
		return
	}
	httpresponse.WriteResponseWithStatus(w, http.StatusOK, stats)
}

func (p *ProfileHandler) HandleGames(w http.ResponseWriter, r *http.Request) {
	prof, ok := p.lookup(w, r)
	if !ok {
		return
	}
	games, err := p.statsUC.RecentGames(r.Context(), prof.ID, limit(r, p.limitGames))
	if err != nil {
		p.writeError(w, "games", err)
		return
	}
	httpresponse.WriteResponseWithStatus(w, http.StatusOK, games)
}

// HandleReport renders the player's whole history as a PDF.
func (p *ProfileHandler) HandleReport(w http.ResponseWriter, r *http.Request) {
	prof, ok := p.lookup(w, r)
	if !ok {
		return
	}
	stats, err := p.statsUC.UserStats(r.Context(), prof.ID)
	if err != nil {
		p.writeError(w, "report", err)
		return
	}
	games, err := p.statsUC.RecentGames(r.Context(), prof.ID, 0)
	if err != nil {
		p.writeError(w, "report", err)
		return
	}

	var buf bytes.Buffer
	if err := report.History(&buf, prof, stats, games, p.clock.Now()); err != nil {
		p.log.Errorf("report for %s: %v", prof.Username, err)
		httpresponse.WriteInternalErrorResponse(w)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", prof.Username+".pdf"))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (p *ProfileHandler) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := p.statsUC.Leaderboard(r.Context(), limit(r, p.limitPlayers))
	if err != nil {
		p.writeError(w, "leaderboard", err)
		return
	}
	httpresponse.WriteResponseWithStatus(w, http.StatusOK, board)
}

func (p *ProfileHandler) lookup(w http.ResponseWriter, r *http.Request) (user.Profile, bool) {
	prof, err := p.profileUC.GetByUsername(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		p.writeError(w, "lookup", err)
		return user.Profile{}, false
	}
	return prof, true
}

func (p *ProfileHandler) writeView(w http.ResponseWriter, r *http.Request, prof user.Profile) {
	stats, err := p.statsUC.UserStats(r.Context(), prof.ID)
	if err != nil {
		p.writeError(w, "stats", err)
		return
	}
	httpresponse.WriteResponseWithStatus(w, http.StatusOK, ProfileView{Profile: prof, Stats: stats})
}

func (p *ProfileHandler) writeError(w http.ResponseWriter, op string, err error) {
	if httpresponse.StatusFor(err) == http.StatusInternalServerError {
		p.log.Errorf("%s: %v", op, err)
	}
	httpresponse.WriteError(w, err)
}

// limit reads ?limit=, falling back to and capped by ceiling.
func limit(r *http.Request, ceiling int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 || (ceiling > 0 && n > ceiling) {
		return ceiling
	}
	return n
}
