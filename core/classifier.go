package core

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
)

type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeBusinessFailure
	OutcomeTransportFailure
	// OutcomeRaw marks results of requests that opted out of error handling.
	OutcomeRaw
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeBusinessFailure:
		return "business_failure"
	case OutcomeTransportFailure:
		return "transport_failure"
	case OutcomeRaw:
		return "raw"
	default:
		return "unknown"
	}
}

// Response is a completed exchange as seen by callers.
type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	// Code and Message come from the business envelope when one is present.
	Code    int
	Message string
	// Data is the envelope data field, or the whole body when no envelope is found.
	Data json.RawMessage
}

// Decode unmarshals the response data into v.
func (r *Response) Decode(v any) error {
	if r == nil || len(r.Data) == 0 {
		return badInputError("core: response has no data to decode")
	}
	return json.Unmarshal(r.Data, v)
}

type Classification struct {
	Outcome  Outcome
	Response *Response
	Err      error
}

// Unauthorized reports whether the classification should drive a refresh.
func (c Classification) Unauthorized() bool {
	if c.Outcome != OutcomeTransportFailure {
		return false
	}
	return IsKind(c.Err, KindUnauthorized)
}

type Classifier struct {
	config Config
}

func NewClassifier(cfg Config) *Classifier {
	return &Classifier{config: cfg.normalized()}
}

// Classify maps the raw outcome of an exchange to exactly one result.
func (c *Classifier) Classify(req Request, res TransportResponse, transportErr error) Classification {
	if req.SkipErrorHandling {
		return c.classifyRaw(res, transportErr)
	}
	if transportErr != nil {
		return Classification{
			Outcome: OutcomeTransportFailure,
			Err:     newClassifiedError(KindNetwork, 0, messageNetwork, transportErr),
		}
	}

	response := c.buildResponse(res)
	status := res.StatusCode
	if status >= http.StatusOK && status < http.StatusMultipleChoices {
		env, ok := c.parseEnvelope(res.Body)
		if !ok || !env.hasCode || c.isSuccessCode(env.code) {
			return Classification{Outcome: OutcomeSuccess, Response: response}
		}
		classified := newClassifiedError(KindBusiness, status, env.message, nil)
		classified.Code = env.code
		return Classification{
			Outcome:  OutcomeBusinessFailure,
			Response: response,
			Err:      classified,
		}
	}

	env, _ := c.parseEnvelope(res.Body)
	var classified *ClassifiedError
	switch {
	case c.config.IsRefreshStatus(status):
		classified = newClassifiedError(KindUnauthorized, status, messageUnauthorized, nil)
	case status == http.StatusForbidden:
		classified = newClassifiedError(KindForbidden, status, messageForbidden, nil)
	case status == http.StatusNotFound:
		classified = newClassifiedError(KindNotFound, status, messageNotFound, nil)
	case status >= http.StatusInternalServerError:
		classified = newClassifiedError(KindServerError, status, messageServerError, nil)
	default:
		classified = newClassifiedError(KindHTTP, status, env.message, nil)
	}
	if env.hasCode {
		classified.Code = env.code
	}
	return Classification{
		Outcome:  OutcomeTransportFailure,
		Response: response,
		Err:      classified,
	}
}

func (c *Classifier) classifyRaw(res TransportResponse, transportErr error) Classification {
	if transportErr != nil {
		return Classification{Outcome: OutcomeRaw, Err: transportErr}
	}
	response := c.buildResponse(res)
	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		return Classification{
			Outcome:  OutcomeRaw,
			Response: response,
			Err:      &StatusError{StatusCode: res.StatusCode, Body: append([]byte(nil), res.Body...)},
		}
	}
	return Classification{Outcome: OutcomeRaw, Response: response}
}

func (c *Classifier) buildResponse(res TransportResponse) *Response {
	response := &Response{
		StatusCode: res.StatusCode,
		Headers:    cloneStringMap(res.Headers),
		Body:       res.Body,
	}
	env, ok := c.parseEnvelope(res.Body)
	if !ok || !env.hasCode {
		if json.Valid(res.Body) {
			response.Data = json.RawMessage(res.Body)
		}
		return response
	}
	response.Code = env.code
	response.Message = env.message
	response.Data = env.data
	return response
}

type envelope struct {
	hasCode bool
	code    int
	message string
	data    json.RawMessage
}

func (c *Classifier) parseEnvelope(body []byte) (envelope, bool) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return envelope{}, false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return envelope{}, false
	}

	out := envelope{}
	if raw, ok := fields[c.config.Envelope.CodeField]; ok {
		if code, parsed := parseCode(raw); parsed {
			out.hasCode = true
			out.code = code
		}
	}
	for _, key := range []string{c.config.Envelope.MessageField, "message", "msg"} {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var message string
		if err := json.Unmarshal(raw, &message); err == nil && strings.TrimSpace(message) != "" {
			out.message = strings.TrimSpace(message)
			break
		}
	}
	if raw, ok := fields[c.config.Envelope.DataField]; ok {
		out.data = raw
	}
	return out, true
}

func (c *Classifier) isSuccessCode(code int) bool {
	for _, candidate := range c.config.Envelope.SuccessCodes {
		if candidate == code {
			return true
		}
	}
	return false
}

func parseCode(raw json.RawMessage) (int, bool) {
	var number json.Number
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var value any
	if err := decoder.Decode(&value); err != nil {
		return 0, false
	}
	switch typed := value.(type) {
	case json.Number:
		number = typed
	case string:
		number = json.Number(strings.TrimSpace(typed))
	default:
		return 0, false
	}
	code, err := strconv.Atoi(number.String())
	if err != nil {
		return 0, false
	}
	return code, true
}
