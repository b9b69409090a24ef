package agent

import (
	"encoding/json"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"kblight/internal/core"
	"kblight/internal/server"
)

// CommandHandler executes commands sent by WebSocket clients. Results and
// errors go back over the hub.
type CommandHandler struct {
	agent  *Agent
	logger zerolog.Logger
}

func NewCommandHandler(a *Agent) *CommandHandler {
	return &CommandHandler{
		agent:  a,
		logger: log.With().Str("component", "ws-commands").Logger(),
	}
}

type namePayload struct {
	Name string `json:"name"`
}

type scriptPayload struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

type schedulePayload struct {
	ID      int    `json:"id"`
	Spec    string `json:"spec"`
	Command string `json:"command"`
}

type profilePayload struct {
	Name    string       `json:"name"`
	Profile core.Profile `json:"profile"`
}

func (h *CommandHandler) Handle(msg server.Message, hub *server.Hub) {
	var cmd server.Command
	if err := json.Unmarshal(msg.Raw, &cmd); err != nil {
		h.logger.Warn().Err(err).Msg("invalid command")
		return
	}
	if err := h.handle(cmd, hub); err != nil {
		h.logger.Warn().Err(err).Str("type", cmd.Type).Msg("command failed")
		hub.Broadcast(server.NewMessage("error", map[string]string{"command": cmd.Type, "error": err.Error()}))
	}
}

func (h *CommandHandler) handle(cmd server.Command, hub *server.Hub) error {
	a := h.agent
	switch cmd.Type {
	case "applyProfile":
		var p namePayload
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			return err
		}
		return a.ApplyProfile(p.Name)

	case "setProfile":
		var p core.Profile
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			return err
		}
		return a.SetProfile(p)

	case "saveProfile":
		var p profilePayload
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			return err
		}
		return a.profiles.Put(p.Name, p.Profile)

	case "deleteProfile":
		var p namePayload
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			return err
		}
		return a.profiles.Delete(p.Name)

	case "runCustom":
		var p namePayload
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			return err
		}
		return a.RunCustom(p.Name)

	case "refresh":
		return a.Refresh()

	case "stop":
		a.Stop()

	case "getScriptCode":
		var p namePayload
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			return err
		}
		code, err := a.scripts.Code(p.Name)
		if err != nil {
			return err
		}
		hub.Broadcast(server.NewMessage("script_code", scriptPayload{Name: p.Name, Code: code}))

	case "saveScriptCode":
		var p scriptPayload
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			return err
		}
		if err := a.scripts.Save(p.Name, p.Code); err != nil {
			return err
		}
		return h.broadcastScripts(hub)

	case "deleteScript":
		var p namePayload
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			return err
		}
		if err := a.scripts.Delete(p.Name); err != nil {
			return err
		}
		return h.broadcastScripts(hub)

	case "addSchedule":
		var p schedulePayload
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			return err
		}
		if _, err := a.scheduler.Add(p.Spec, p.Command); err != nil {
			return err
		}
		hub.Broadcast(server.NewMessage("schedule_list", a.scheduler.All()))

	case "removeSchedule":
		var p schedulePayload
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			return err
		}
		if err := a.scheduler.Remove(p.ID); err != nil {
			return err
		}
		hub.Broadcast(server.NewMessage("schedule_list", a.scheduler.All()))

	default:
		h.logger.Warn().Str("type", cmd.Type).Msg("unknown command")
	}
	return nil
}

func (h *CommandHandler) broadcastScripts(hub *server.Hub) error {
	names, err := h.agent.scripts.List()
	if err != nil {
		return err
	}
	hub.Broadcast(server.NewMessage("script_list", names))
	return nil
}
