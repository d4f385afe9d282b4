package aliyun

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/autonomi-lab/roadscribe/pkg/asr"
)

// Wire protocol constants for the NLS speech transcriber gateway.
const (
	namespaceTranscriber = "SpeechTranscriber"

	opStartTranscription = "StartTranscription"
	opStopTranscription  = "StopTranscription"

	opTranscriptionStarted   = "TranscriptionStarted"
	opResultChanged          = "TranscriptionResultChanged"
	opSentenceEnd            = "SentenceEnd"
	opTranscriptionCompleted = "TranscriptionCompleted"
)

// Service status codes carried in event headers.
const (
	statusSuccess = 20000000

	statusInvalidParam  = 40000000
	statusTokenInvalid  = 40000001
	statusTokenExpired  = 40000002
	statusTaskNotFound  = 40000004
	statusTaskBusy      = 40000005
	statusTaskCompleted = 40010004

	statusServerInternal = 50000000
)

// header is the common envelope header shared by control and event messages.
type header struct {
	MessageID  string `json:"message_id"`
	TaskID     string `json:"task_id"`
	Namespace  string `json:"namespace,omitempty"`
	Name       string `json:"name"`
	AppKey     string `json:"appkey,omitempty"`
	Status     int    `json:"status,omitempty"`
	StatusText string `json:"status_text,omitempty"`
}

// controlMessage is an outbound StartTranscription/StopTranscription envelope.
type controlMessage struct {
	Header  header `json:"header"`
	Payload any    `json:"payload,omitempty"`
}

// startPayload is the audio-format payload for StartTranscription.
type startPayload struct {
	Format                         string `json:"format"`
	SampleRate                     int    `json:"sample_rate"`
	EnablePunctuationPrediction    bool   `json:"enable_punctuation_prediction"`
	EnableInverseTextNormalization bool   `json:"enable_inverse_text_normalization"`
	EnableIntermediateResult       bool   `json:"enable_intermediate_result"`
}

// eventMessage is an inbound envelope from the service.
type eventMessage struct {
	Header  header `json:"header"`
	Payload struct {
		Result    string `json:"result"`
		Index     int    `json:"index"`
		BeginTime int    `json:"begin_time"` // ms
		Time      int    `json:"time"`       // ms, end of sentence
	} `json:"payload"`
}

// generateID returns a fresh 32-character lowercase hexadecimal identifier,
// as required for message_id and task_id fields. The gateway rejects any
// other length or alphabet.
func generateID() string {
	id := uuid.New()
	return strings.ReplaceAll(id.String(), "-", "")
}

// marshalStart builds the StartTranscription control message for a new task.
func marshalStart(taskID, appKey string, sampleRate int) ([]byte, error) {
	msg := controlMessage{
		Header: header{
			MessageID: generateID(),
			TaskID:    taskID,
			Namespace: namespaceTranscriber,
			Name:      opStartTranscription,
			AppKey:    appKey,
		},
		Payload: startPayload{
			Format:                         "pcm",
			SampleRate:                     sampleRate,
			EnablePunctuationPrediction:    true,
			EnableInverseTextNormalization: true,
			EnableIntermediateResult:       true,
		},
	}
	return json.Marshal(msg)
}

// marshalStop builds the StopTranscription control message for taskID.
func marshalStop(taskID, appKey string) ([]byte, error) {
	msg := controlMessage{
		Header: header{
			MessageID: generateID(),
			TaskID:    taskID,
			Namespace: namespaceTranscriber,
			Name:      opStopTranscription,
			AppKey:    appKey,
		},
	}
	return json.Marshal(msg)
}

// parseEvent decodes an inbound message. Returns an asr.KindProtocol error
// for JSON the envelope decoder cannot make sense of; such messages are
// dropped by the caller without affecting the connection.
func parseEvent(data []byte) (eventMessage, error) {
	var msg eventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return eventMessage{}, asr.WrapError(asr.KindProtocol, err, "decode event envelope")
	}
	if msg.Header.Name == "" && msg.Header.Status == 0 {
		return eventMessage{}, asr.Errorf(asr.KindProtocol, "event envelope missing header")
	}
	return msg, nil
}

// statusError maps a non-success status code to the error taxonomy. Token
// errors are KindService like the rest; the transport inspects the status to
// force a token refresh on the next connect.
func statusError(code int, text string) *asr.Error {
	var what string
	switch code {
	case statusInvalidParam:
		what = "invalid parameter"
	case statusTokenInvalid:
		what = "token invalid"
	case statusTokenExpired:
		what = "token expired"
	case statusTaskNotFound:
		what = "task not found"
	case statusTaskBusy:
		what = "task busy"
	case statusTaskCompleted:
		what = "task already completed"
	case statusServerInternal:
		what = "server internal error"
	default:
		what = "unknown service error"
	}
	e := asr.Errorf(asr.KindService, "%s: %s (status %d)", what, text, code)
	e.Status = code
	return e
}

// isTokenStatus reports whether code indicates an invalid or expired token.
func isTokenStatus(code int) bool {
	return code == statusTokenInvalid || code == statusTokenExpired
}
