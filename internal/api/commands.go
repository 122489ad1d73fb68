package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/hon-bridge/internal/hon/appliance"
	"github.com/nerrad567/hon-bridge/internal/hon/command"
	"github.com/nerrad567/hon-bridge/internal/hon/parameter"
)

// ParameterView is the JSON form of one command parameter.
type ParameterView struct {
	Key         string   `json:"key"`
	Kind        string   `json:"kind"`
	Value       string   `json:"value"`
	Default     string   `json:"default,omitempty"`
	Category    string   `json:"category,omitempty"`
	Mandatory   bool     `json:"mandatory,omitempty"`
	Values      []string `json:"values,omitempty"`
	Min         *float64 `json:"min,omitempty"`
	Max         *float64 `json:"max,omitempty"`
	Step        *float64 `json:"step,omitempty"`
	Description string   `json:"description"`
}

func newParameterView(p parameter.Parameter) ParameterView {
	info := p.Info()
	view := ParameterView{
		Key:         p.Key(),
		Kind:        string(p.Kind()),
		Value:       p.Value(),
		Default:     p.Default(),
		Category:    info.Category,
		Mandatory:   info.Mandatory,
		Description: p.Dump(),
	}

	switch v := p.(type) {
	case *parameter.Range:
		lo, hi, step := v.Min(), v.Max(), v.Step()
		view.Min, view.Max, view.Step = &lo, &hi, &step
	case interface{ Values() []string }:
		view.Values = v.Values()
	}
	return view
}

// CommandSummary lists one command of an appliance.
type CommandSummary struct {
	Name     string   `json:"name"`
	Program  string   `json:"program,omitempty"`
	Programs []string `json:"programs,omitempty"`
	Settings []string `json:"settings"`
}

// CommandDetail is the operator help for one command (or one program of it).
type CommandDetail struct {
	Name       string          `json:"name"`
	Program    string          `json:"program,omitempty"`
	Programs   []string        `json:"programs,omitempty"`
	Parameters []ParameterView `json:"parameters"`
	Help       string          `json:"help"`
	Example    string          `json:"example"`
}

// SendCommandRequest is the body of POST /devices/{mac}/commands/{command}.
// Both fields are optional.
type SendCommandRequest struct {
	Program    string         `json:"program,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// handleListCommands lists the commands the appliance schema declares.
func (s *Server) handleListCommands(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.loadCommands(w, r)
	if !ok {
		return
	}

	table := dev.Commands()
	out := make([]CommandSummary, 0, table.Len())
	for _, name := range table.Names() {
		cmd, _ := table.Get(name)
		summary := CommandSummary{
			Name:     name,
			Programs: cmd.ProgramNames(),
			Settings: cmd.SettingKeys(),
		}
		if cmd.Family().IsMulti() {
			summary.Program = cmd.Program()
		}
		out = append(out, summary)
	}
	writeJSON(w, http.StatusOK, map[string]any{"mac": dev.MAC(), "commands": out})
}

// handleDescribeCommand returns parameter help for a command.
//
// Query parameters:
//   - program: describe this program variant instead of the active one
func (s *Server) handleDescribeCommand(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.loadCommands(w, r)
	if !ok {
		return
	}

	name := chi.URLParam(r, "command")
	family, found := dev.Commands().Family(name)
	if !found {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "command not available: "+name)
		return
	}

	cmd := family.Active()
	if program := r.URL.Query().Get("program"); program != "" {
		variant, exists := family.Programs()[program]
		if !exists {
			writeBadRequest(w, "unknown program: "+program)
			return
		}
		cmd = variant
	}

	writeJSON(w, http.StatusOK, describe(cmd))
}

// handleSendCommand sends a command through the appliance store and waits
// for the remote API's result.
func (s *Server) handleSendCommand(w http.ResponseWriter, r *http.Request) {
	mac := chi.URLParam(r, "mac")
	name := chi.URLParam(r, "command")

	var req SendCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	result, err := s.store.Execute(r.Context(), mac, name, req.Program, req.Parameters)
	if err != nil {
		s.logger.Warn("command failed",
			"mac", mac,
			"command", name,
			"program", req.Program,
			"error", err,
			"request_id", requestID(r.Context()),
		)
		writeStoreError(w, err)
		return
	}

	s.logger.Info("command sent",
		"mac", mac,
		"command", name,
		"program", req.Program,
		"transaction_id", result.TransactionID,
		"attempts", result.Attempts,
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"mac":            mac,
		"command":        name,
		"program":        req.Program,
		"status":         "accepted",
		"transaction_id": result.TransactionID,
		"result_code":    result.ResultCode,
		"attempts":       result.Attempts,
	})
}

// loadCommands resolves the appliance and makes sure its schema is loaded.
func (s *Server) loadCommands(w http.ResponseWriter, r *http.Request) (*appliance.Device, bool) {
	dev, ok := s.lookup(w, r)
	if !ok {
		return nil, false
	}
	if err := s.store.LoadCommandsIfNeeded(r.Context(), dev); err != nil {
		writeStoreError(w, err)
		return nil, false
	}
	return dev, true
}

func describe(cmd *command.Command) CommandDetail {
	params := cmd.Parameters()
	views := make([]ParameterView, 0, len(params))
	for _, key := range cmd.Keys() {
		views = append(views, newParameterView(params[key]))
	}

	help, example := cmd.Dump()
	detail := CommandDetail{
		Name:       cmd.Name(),
		Programs:   cmd.ProgramNames(),
		Parameters: views,
		Help:       help,
		Example:    example,
	}
	if cmd.Family().IsMulti() {
		detail.Program = cmd.Program()
	}
	return detail
}
