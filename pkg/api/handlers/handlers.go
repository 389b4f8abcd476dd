package handlers

import (
	"encoding/json"
	"net/http"
	"regexp"

	"github.com/gorilla/mux"
	"github.com/ledgerquest/ledgerquest/pkg/achievements"
	"github.com/ledgerquest/ledgerquest/pkg/api/middleware"
	"github.com/ledgerquest/ledgerquest/pkg/avatars"
	"github.com/ledgerquest/ledgerquest/pkg/battles"
	"github.com/ledgerquest/ledgerquest/pkg/log"
	"github.com/ledgerquest/ledgerquest/pkg/repositories"
	rpgtypes "github.com/ledgerquest/ledgerquest/pkg/rpg/types"
	"github.com/ledgerquest/ledgerquest/pkg/worldmap"
)

var nameRegex = regexp.MustCompile(`^[a-zA-Z0-9 ]+$`)

// principalAvatar resolves the authenticated user's avatar or writes
// the appropriate error.
func principalAvatar(store *avatars.Store, w http.ResponseWriter, r *http.Request) (*rpgtypes.Avatar, bool) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		log.Error("failed to get principal from context")
		writeError(w, http.StatusInternalServerError, codeInternal, "Failed to resolve request identity")
		return nil, false
	}
	avatar, err := store.GetByUser(r.Context(), principal.UserID)
	if err != nil {
		if repositories.IsNotFound(err) {
			writeError(w, http.StatusNotFound, codeAvatarNotFound, "Avatar not found")
			return nil, false
		}
		log.Error("failed to load avatar: %v", err)
		writeError(w, http.StatusInternalServerError, codeInternal, "Failed to load avatar")
		return nil, false
	}
	return avatar, true
}

type createAvatarRequest struct {
	Name  string `json:"name"`
	Class string `json:"class"`
}

func HandleCreateAvatar(store *avatars.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := middleware.PrincipalFromContext(r.Context())
		if !ok {
			log.Error("failed to get principal from context")
			writeError(w, http.StatusInternalServerError, codeInternal, "Failed to resolve request identity")
			return
		}

		var req createAvatarRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeValidation, "Invalid request body")
			return
		}

		if len(req.Name) < 1 || len(req.Name) > 16 {
			writeError(w, http.StatusBadRequest, codeValidation, "Name must be between 1 and 16 characters")
			return
		}
		if !nameRegex.MatchString(req.Name) {
			writeError(w, http.StatusBadRequest, codeValidation, "Name cannot contain special characters")
			return
		}
		class, err := rpgtypes.ParseClass(req.Class)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeValidation, "Unknown class")
			return
		}

		avatar, err := store.Create(r.Context(), principal.UserID, class, req.Name)
		if err != nil {
			if repositories.IsAlreadyExists(err) {
				writeError(w, http.StatusConflict, codeAvatarExists, "User already owns an avatar")
				return
			}
			log.Error("failed to create avatar: %v", err)
			writeError(w, http.StatusInternalServerError, codeInternal, "Failed to create avatar")
			return
		}

		writeJSON(w, http.StatusCreated, avatar)
	}
}

func HandleGetAvatar(store *avatars.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		avatar, ok := principalAvatar(store, w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, avatar)
	}
}

func HandleGetWorldMap(store *avatars.Store, gate *worldmap.Gate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		avatar, ok := principalAvatar(store, w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, gate.Annotate(r.Context(), avatar))
	}
}

type startBattleRequest struct {
	CityNumber int `json:"city_number"`
}

func HandleStartBattle(store *avatars.Store, engine *battles.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		avatar, ok := principalAvatar(store, w, r)
		if !ok {
			return
		}

		var req startBattleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeValidation, "Invalid request body")
			return
		}

		battle, err := engine.Start(r.Context(), avatar.ID, req.CityNumber)
		if err != nil {
			writeBattleError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, battle)
	}
}

type battleActionRequest struct {
	Action string `json:"action"`
}

func HandleBattleAction(store *avatars.Store, engine *battles.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		avatar, ok := principalAvatar(store, w, r)
		if !ok {
			return
		}
		battleID := mux.Vars(r)["battleID"]

		var req battleActionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeValidation, "Invalid request body")
			return
		}
		action, err := rpgtypes.ParseBattleAction(req.Action)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidAction, "Unknown action")
			return
		}

		outcome, err := engine.Act(r.Context(), avatar.ID, battleID, action)
		if err != nil {
			writeBattleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, outcome)
	}
}

// achievementStatus is a catalog entry annotated with the avatar's
// unlock state.
type achievementStatus struct {
	achievements.Achievement
	Unlocked bool `json:"unlocked"`
}

func HandleGetAchievements(store *avatars.Store, catalog *achievements.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		avatar, ok := principalAvatar(store, w, r)
		if !ok {
			return
		}

		entries := catalog.Entries()
		statuses := make([]achievementStatus, len(entries))
		for i, entry := range entries {
			statuses[i] = achievementStatus{
				Achievement: entry,
				Unlocked:    avatar.HasAchievement(entry.ID),
			}
		}
		writeJSON(w, http.StatusOK, statuses)
	}
}

type goalCompletedRequest struct {
	GoalID     string `json:"goal_id"`
	StreakDays int    `json:"streak_days"`
}

// HandleGoalCompleted is the hook the finance side calls when a user
// completes a savings goal. It evaluates and persists goal-triggered
// achievements.
func HandleGoalCompleted(store *avatars.Store, engine *battles.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		avatar, ok := principalAvatar(store, w, r)
		if !ok {
			return
		}

		var req goalCompletedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeValidation, "Invalid request body")
			return
		}

		unlocked, err := engine.HandleExternalEvent(r.Context(), avatar.ID, rpgtypes.Event{
			Type: rpgtypes.EventGoalCompleted,
			Payload: map[string]interface{}{
				"goal_id":     req.GoalID,
				"streak_days": req.StreakDays,
			},
		})
		if err != nil {
			writeBattleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"new_achievements": unlocked,
		})
	}
}
