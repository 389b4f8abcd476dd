package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/ledgerquest/ledgerquest/pkg/battles"
	"github.com/ledgerquest/ledgerquest/pkg/log"
	"github.com/ledgerquest/ledgerquest/pkg/repositories"
)

// Stable error codes exposed to clients. Messages may change; codes
// must not.
const (
	codeValidation          = "VALIDATION"
	codeAvatarNotFound      = "AVATAR_NOT_FOUND"
	codeAvatarExists        = "AVATAR_ALREADY_EXISTS"
	codeBattleNotFound      = "BATTLE_NOT_FOUND"
	codeCityLocked          = "CITY_LOCKED"
	codeBattleAlreadyActive = "BATTLE_ALREADY_ACTIVE"
	codeBattleFinished      = "BATTLE_FINISHED"
	codeNotYourBattle       = "NOT_YOUR_BATTLE"
	codeInvalidAction       = "INVALID_ACTION"
	codeBusy                = "BUSY"
	codeInternal            = "INTERNAL"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// writeBattleError maps engine and repository errors onto the stable
// error codes. Storage failures surface as a generic service error
// without leaking details.
func writeBattleError(w http.ResponseWriter, err error) {
	switch {
	case battles.IsInvalidCity(err):
		writeError(w, http.StatusBadRequest, codeValidation, "Invalid city number")
	case battles.IsCityLocked(err):
		writeError(w, http.StatusConflict, codeCityLocked, "City is locked")
	case battles.IsBattleAlreadyActive(err):
		writeError(w, http.StatusConflict, codeBattleAlreadyActive, "A battle is already active")
	case battles.IsBattleFinished(err):
		writeError(w, http.StatusConflict, codeBattleFinished, "Battle is already finished")
	case battles.IsNotYourBattle(err):
		writeError(w, http.StatusForbidden, codeNotYourBattle, "Battle belongs to another avatar")
	case battles.IsInvalidAction(err):
		writeError(w, http.StatusBadRequest, codeInvalidAction, "Invalid action")
	case battles.IsBusy(err):
		writeError(w, http.StatusConflict, codeBusy, "Avatar is busy, retry")
	case repositories.IsNotFound(err):
		writeError(w, http.StatusNotFound, codeBattleNotFound, "Battle not found")
	default:
		log.Error("battle request failed: %v", err)
		writeError(w, http.StatusInternalServerError, codeInternal, "Service error")
	}
}
