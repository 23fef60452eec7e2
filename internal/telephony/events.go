package telephony

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// LiveKit webhook event names.
const (
	EventRoomStarted       = "room_started"
	EventRoomFinished      = "room_finished"
	EventRoomEnded         = "room_ended"
	EventParticipantJoined = "participant_joined"
	EventParticipantLeft   = "participant_left"
	EventEgressStarted     = "egress_started"
	EventEgressUpdated     = "egress_updated"
	EventEgressEnded       = "egress_ended"
	EventTrackPublished    = "track_published"
	EventTrackUnpublished  = "track_unpublished"
)

// SIPIdentityPrefix marks the phone-side participant in a call room.
const SIPIdentityPrefix = "sip-"

var ErrMalformedEvent = errors.New("malformed webhook payload")

// Event is the closed set of webhook shapes the reconciler understands.
type Event interface {
	isEvent()
}

type RoomStarted struct {
	CallID    string
	StartedAt *time.Time
}

type ParticipantJoined struct {
	CallID   string
	Identity string
}

type ParticipantLeft struct {
	CallID   string
	Identity string
}

// RoomFinished covers both room_finished and room_ended.
type RoomFinished struct {
	CallID    string
	CreatedAt *time.Time
	EndedAt   *time.Time
}

// EgressEnded carries the recording location; RoomName is the call id.
type EgressEnded struct {
	RoomName string
	Location string
}

// Ignored events are known to be irrelevant to call state.
type Ignored struct {
	Name string
}

// Unrecognized events are acknowledged and logged.
type Unrecognized struct {
	Name string
}

func (RoomStarted) isEvent()       {}
func (ParticipantJoined) isEvent() {}
func (ParticipantLeft) isEvent()   {}
func (RoomFinished) isEvent()      {}
func (EgressEnded) isEvent()       {}
func (Ignored) isEvent()           {}
func (Unrecognized) isEvent()      {}

// Delivery is one decoded webhook body.
type Delivery struct {
	ID    string
	Name  string
	Event Event
}

type rawEvent struct {
	Event       string          `json:"event"`
	ID          string          `json:"id"`
	Room        *rawRoom        `json:"room"`
	Participant *rawParticipant `json:"participant"`
	EgressSnake *rawEgress      `json:"egress_info"`
	EgressCamel *rawEgress      `json:"egressInfo"`
}

type rawRoom struct {
	Name              string          `json:"name"`
	CreationTime      json.RawMessage `json:"creation_time"`
	CreationTimeCamel json.RawMessage `json:"creationTime"`
	CreatedAt         json.RawMessage `json:"created_at"`
	EndTime           json.RawMessage `json:"end_time"`
	EndedAt           json.RawMessage `json:"ended_at"`
}

type rawParticipant struct {
	Identity string `json:"identity"`
}

type rawEgress struct {
	RoomNameSnake    string          `json:"room_name"`
	RoomNameCamel    string          `json:"roomName"`
	FileResultsSnake json.RawMessage `json:"file_results"`
	FileResultsCamel json.RawMessage `json:"fileResults"`
	File             *rawFile        `json:"file"`
}

type rawFile struct {
	DownloadURLSnake string `json:"download_url"`
	DownloadURLCamel string `json:"downloadUrl"`
	Location         string `json:"location"`
	Filename         string `json:"filename"`
}

// Decode maps a webhook body to its typed variant. Only malformed JSON is an
// error; missing fields yield zero values that the reconciler treats as
// inapplicable.
func Decode(body []byte) (Delivery, error) {
	var raw rawEvent
	if err := json.Unmarshal(body, &raw); err != nil {
		return Delivery{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	d := Delivery{ID: raw.ID, Name: raw.Event}
	room := raw.Room
	if room == nil {
		room = &rawRoom{}
	}
	identity := ""
	if raw.Participant != nil {
		identity = raw.Participant.Identity
	}

	switch raw.Event {
	case EventRoomStarted:
		d.Event = RoomStarted{
			CallID:    room.Name,
			StartedAt: firstTimestamp(room.CreationTime, room.CreationTimeCamel, room.CreatedAt),
		}
	case EventParticipantJoined:
		d.Event = ParticipantJoined{CallID: room.Name, Identity: identity}
	case EventParticipantLeft:
		d.Event = ParticipantLeft{CallID: room.Name, Identity: identity}
	case EventRoomFinished, EventRoomEnded:
		d.Event = RoomFinished{
			CallID:    room.Name,
			CreatedAt: firstTimestamp(room.CreationTime, room.CreationTimeCamel, room.CreatedAt),
			EndedAt:   firstTimestamp(room.EndTime, room.EndedAt),
		}
	case EventEgressEnded:
		d.Event = decodeEgress(raw)
	case EventTrackPublished, EventTrackUnpublished, EventEgressStarted, EventEgressUpdated:
		d.Event = Ignored{Name: raw.Event}
	default:
		d.Event = Unrecognized{Name: raw.Event}
	}
	return d, nil
}

func decodeEgress(raw rawEvent) EgressEnded {
	eg := raw.EgressSnake
	if eg == nil {
		eg = raw.EgressCamel
	}
	if eg == nil {
		return EgressEnded{}
	}

	out := EgressEnded{RoomName: firstNonEmpty(eg.RoomNameSnake, eg.RoomNameCamel)}

	files := eg.FileResultsSnake
	if isEmptyJSON(files) {
		files = eg.FileResultsCamel
	}
	if f, ok := firstFile(files); ok {
		out.Location = f.location()
	} else if eg.File != nil {
		out.Location = eg.File.location()
	}
	return out
}

// firstFile accepts either a list of file results or a single object.
func firstFile(b json.RawMessage) (rawFile, bool) {
	if isEmptyJSON(b) {
		return rawFile{}, false
	}
	var list []rawFile
	if err := json.Unmarshal(b, &list); err == nil {
		if len(list) == 0 {
			return rawFile{}, false
		}
		return list[0], true
	}
	var one rawFile
	if err := json.Unmarshal(b, &one); err == nil {
		return one, true
	}
	return rawFile{}, false
}

func (f rawFile) location() string {
	return firstNonEmpty(f.DownloadURLSnake, f.DownloadURLCamel, f.Location, f.Filename)
}

func isEmptyJSON(b json.RawMessage) bool {
	b = bytes.TrimSpace(b)
	return len(b) == 0 || bytes.Equal(b, []byte("null"))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func firstTimestamp(candidates ...json.RawMessage) *time.Time {
	for _, c := range candidates {
		if t, ok := parseTimestamp(c); ok {
			return &t
		}
	}
	return nil
}

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// parseTimestamp accepts epoch seconds (number or digit string, the latter
// being how protojson renders int64) and ISO-8601 strings. Zero values and
// anything unparsable count as absent.
func parseTimestamp(b json.RawMessage) (time.Time, bool) {
	if isEmptyJSON(b) {
		return time.Time{}, false
	}

	var num float64
	if err := json.Unmarshal(b, &num); err == nil {
		return fromEpoch(num)
	}

	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return time.Time{}, false
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return fromEpoch(f)
	}
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func fromEpoch(sec float64) (time.Time, bool) {
	if sec <= 0 || math.IsNaN(sec) || math.IsInf(sec, 0) {
		return time.Time{}, false
	}
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(frac*1e9)).UTC(), true
}
