package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Request method names. The method on a pending request determines which
// decision shape a response must carry; the pairing is part of the contract,
// not inferred from the payload.
const (
	// MethodRequestUserInput is the generic question-set request.
	MethodRequestUserInput = "requestUserInput"
	// MethodCommandApproval is a synchronous command-execution approval.
	MethodCommandApproval = "execCommandApproval"
	// MethodFileChangeApproval is a synchronous file-change approval.
	MethodFileChangeApproval = "applyPatchApproval"
	// MethodReviewDecision is the legacy review-mode decision.
	MethodReviewDecision = "reviewDecision"
)

// RequestID identifies a pending user-input request. Backends disagree on
// the wire shape: the IPC provider numbers approval requests with integers,
// the generic path uses strings. RequestID accepts both and remembers which
// form it saw so echoing it back preserves the native shape.
type RequestID struct {
	value   string
	numeric bool
}

// StringRequestID wraps a string-form request id.
func StringRequestID(value string) RequestID {
	return RequestID{value: value}
}

// NumericRequestID wraps a non-negative integer request id.
func NumericRequestID(value int64) RequestID {
	return RequestID{value: strconv.FormatInt(value, 10), numeric: true}
}

// String returns the id's textual form.
func (r RequestID) String() string { return r.value }

// IsZero reports whether the id is unset.
func (r RequestID) IsZero() bool { return r.value == "" }

// Numeric reports whether the id arrived as an integer.
func (r RequestID) Numeric() bool { return r.numeric }

// Int returns the integer form of a numeric id.
func (r RequestID) Int() (int64, error) {
	if !r.numeric {
		return 0, fmt.Errorf("request id %q is not numeric", r.value)
	}
	return strconv.ParseInt(r.value, 10, 64)
}

// MarshalJSON writes the id in its native wire form.
func (r RequestID) MarshalJSON() ([]byte, error) {
	if r.numeric {
		return []byte(r.value), nil
	}
	return json.Marshal(r.value)
}

// UnmarshalJSON accepts both string and non-negative integer forms.
func (r *RequestID) UnmarshalJSON(data []byte) error {
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		*r = RequestID{value: asString}
		return nil
	}
	var asInt int64
	if err := json.Unmarshal(data, &asInt); err != nil {
		return fmt.Errorf("request id must be a string or integer: %w", err)
	}
	if asInt < 0 {
		return fmt.Errorf("request id must be non-negative, got %d", asInt)
	}
	*r = NumericRequestID(asInt)
	return nil
}

// UserInputOption is one selectable answer to a question.
type UserInputOption struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// UserInputQuestion is one question within a user-input request.
type UserInputQuestion struct {
	ID       string            `json:"id"`
	Header   string            `json:"header,omitempty"`
	Question string            `json:"question"`
	Options  []UserInputOption `json:"options,omitempty"`
	Secret   bool              `json:"secret,omitempty"`
}

// UserInputRequest is a pending request for user input on a thread. The two
// provider-native shapes (generic question sets and synchronous approval
// requests) both normalize into this one type.
type UserInputRequest struct {
	ID        RequestID           `json:"id"`
	Method    string              `json:"method"`
	Questions []UserInputQuestion `json:"questions,omitempty"`
	Completed bool                `json:"completed,omitempty"`
}

// ApprovalDecision is the decision payload for approval-style requests.
type ApprovalDecision string

const (
	// DecisionApproved approves once.
	DecisionApproved ApprovalDecision = "approved"
	// DecisionApprovedForSession approves for the rest of the session.
	DecisionApprovedForSession ApprovalDecision = "approved_for_session"
	// DecisionDenied denies the request.
	DecisionDenied ApprovalDecision = "denied"
	// DecisionAbort denies and interrupts the turn.
	DecisionAbort ApprovalDecision = "abort"
)

// ReviewDecision is the legacy review-mode decision payload.
type ReviewDecision struct {
	Decision string `json:"decision"`
	Note     string `json:"note,omitempty"`
}

// UserInputAnswer is the union of the mutually exclusive decision shapes a
// response may carry. Exactly one field must be set, and it must match the
// originating request's method.
type UserInputAnswer struct {
	Answers            map[string]string `json:"answers,omitempty"`
	CommandApproval    *ApprovalDecision `json:"commandApproval,omitempty"`
	FileChangeApproval *ApprovalDecision `json:"fileChangeApproval,omitempty"`
	Review             *ReviewDecision   `json:"review,omitempty"`
}

// ErrAnswerShape indicates a response whose decision shape is absent,
// duplicated, or does not match the request method.
var ErrAnswerShape = errors.New("user input answer does not match request method")

// Validate checks that exactly one decision shape is present and that it is
// the shape the given request method expects.
func (a UserInputAnswer) Validate(method string) error {
	set := 0
	if a.Answers != nil {
		set++
	}
	if a.CommandApproval != nil {
		set++
	}
	if a.FileChangeApproval != nil {
		set++
	}
	if a.Review != nil {
		set++
	}
	if set != 1 {
		return fmt.Errorf("%w: expected exactly one decision shape, got %d", ErrAnswerShape, set)
	}
	switch method {
	case MethodRequestUserInput:
		if a.Answers == nil {
			return fmt.Errorf("%w: method %q requires answers", ErrAnswerShape, method)
		}
	case MethodCommandApproval:
		if a.CommandApproval == nil {
			return fmt.Errorf("%w: method %q requires a command approval decision", ErrAnswerShape, method)
		}
	case MethodFileChangeApproval:
		if a.FileChangeApproval == nil {
			return fmt.Errorf("%w: method %q requires a file change approval decision", ErrAnswerShape, method)
		}
	case MethodReviewDecision:
		if a.Review == nil {
			return fmt.Errorf("%w: method %q requires a review decision", ErrAnswerShape, method)
		}
	default:
		return fmt.Errorf("%w: unknown request method %q", ErrAnswerShape, method)
	}
	return nil
}
