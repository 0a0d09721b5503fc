package response

import "slotbook/lib/clock"

type Response struct {
	Data          interface{} `json:"data,omitempty"`
	Success       bool        `json:"success" validate:"required"`
	Error         string      `json:"error,omitempty"`
	StatusMessage string      `json:"status_message"`
	Timestamp     string      `json:"timestamp"`
}

func Ok(data interface{}) Response {
	return Response{
		Data:          data,
		Success:       true,
		StatusMessage: "Success",
		Timestamp:     clock.Now(),
	}
}

func Error(message string) Response {
	return Response{
		Success:       false,
		StatusMessage: message,
		Timestamp:     clock.Now(),
	}
}

// Fail is a refused domain condition. The code is a stable machine-readable
// identifier for the booking page (not_found, expired, already_booked,
// slot_taken, missing_slot, invalid_request); data optionally carries
// context such as the invite behind an already_booked refusal.
func Fail(code, message string, data interface{}) Response {
	return Response{
		Data:          data,
		Success:       false,
		Error:         code,
		StatusMessage: message,
		Timestamp:     clock.Now(),
	}
}
