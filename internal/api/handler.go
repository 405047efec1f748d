package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bsdavidson/oink/internal/logging"
	"github.com/bsdavidson/oink/internal/protocol"
)

const maxBodySize = 64 << 10

var commandPattern = regexp.MustCompile(`^[A-Z0-9]{3}$`)

// Device is the part of *device.Device the adapter needs
type Device interface {
	SendCommand(ctx context.Context, command, parameter string, timeout time.Duration) (protocol.Packet, error)
}

// Body is a decoded JSON request body
type Body map[string]interface{}

// HandlerFunc turns a request into a value written back as JSON
type HandlerFunc func(r *http.Request, body Body, dev Device) (interface{}, error)

// SendQuery asks the receiver for the current value of command
func SendQuery(ctx context.Context, dev Device, command string, timeout time.Duration) (protocol.Packet, error) {
	return dev.SendCommand(ctx, command, protocol.QueryParameter, timeout)
}

// SendCommand sends command with parameter. An empty parameter is a 400.
func SendCommand(ctx context.Context, dev Device, command, parameter string, timeout time.Duration) (protocol.Packet, error) {
	if parameter == "" {
		return protocol.Packet{}, NewContextError("Parameter is required", http.StatusBadRequest)
	}
	return dev.SendCommand(ctx, command, parameter, timeout)
}

// HandleCommand maps a request to a query or command.
//
// The command is the last path segment, upper-cased, and must be three
// letters or digits. GET queries it; POST sends body["parameter"]. The
// optional "timeout" query parameter is in milliseconds; values that are
// not a single positive integer are ignored and the device default applies.
func HandleCommand(r *http.Request, body Body, dev Device) (interface{}, error) {
	segments := strings.Split(r.URL.Path, "/")
	command := strings.ToUpper(segments[len(segments)-1])
	if !commandPattern.MatchString(command) {
		return nil, NewContextError("Missing or invalid command", http.StatusBadRequest)
	}

	timeout := parseTimeout(r)

	switch r.Method {
	case http.MethodGet:
		return SendQuery(r.Context(), dev, command, timeout)
	case http.MethodPost:
		return SendCommand(r.Context(), dev, command, body.parameter(), timeout)
	default:
		return nil, NewContextError("Invalid request method", http.StatusMethodNotAllowed)
	}
}

func parseTimeout(r *http.Request) time.Duration {
	values := r.URL.Query()["timeout"]
	if len(values) != 1 {
		return 0
	}
	ms, err := strconv.Atoi(values[0])
	if err != nil || ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

// parameter returns body["parameter"] when it is a string
func (b Body) parameter() string {
	if b == nil {
		return ""
	}
	s, _ := b["parameter"].(string)
	return s
}

type deviceHandler struct {
	dev      Device
	callback HandlerFunc
}

// NewDeviceHandler serves callback for dev; a nil callback means HandleCommand.
//
// POST and PUT bodies must be a JSON object. Successful results are written
// as JSON with status 200, errors as {"error": message}.
func NewDeviceHandler(dev Device, callback HandlerFunc) http.Handler {
	if callback == nil {
		callback = HandleCommand
	}
	return &deviceHandler{dev: dev, callback: callback}
}

func (h *deviceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logging.LogHTTPRequest(r.RemoteAddr, r.Method, r.URL.Path)

	var body Body
	switch r.Method {
	case http.MethodPost, http.MethodPut:
		parsed, err := readBody(r)
		if err != nil {
			logging.Debug("Rejected request body", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
			writeError(w, r, "Invalid request body", http.StatusBadRequest)
			return
		}
		body = parsed
	}

	value, err := h.callback(r, body, h.dev)
	if err != nil {
		code, message := statusFor(err)
		if code == http.StatusInternalServerError && message == "Unexpected error" {
			logging.Warn("Request failed", zap.String("path", r.URL.Path), zap.Error(err))
		}
		writeError(w, r, message, code)
		return
	}

	writeJSON(w, r, value, http.StatusOK)
}

func readBody(r *http.Request) (Body, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return nil, err
	}
	var body Body
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, err
	}
	// "null" decodes to a nil map
	if body == nil {
		return nil, NewContextError("Invalid post body", http.StatusBadRequest)
	}
	return body, nil
}

func writeError(w http.ResponseWriter, r *http.Request, message string, code int) {
	writeJSON(w, r, map[string]string{"error": message}, code)
}

func writeJSON(w http.ResponseWriter, r *http.Request, value interface{}, code int) {
	data, err := json.Marshal(value)
	if err != nil {
		code = http.StatusInternalServerError
		data = []byte(`{"error":"Unexpected error"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	n, _ := w.Write(data)
	logging.LogHTTPResponse(r.RemoteAddr, code, n)
}
