package receiver

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/schema"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/gridexchange/edi-gateway/market"
)

// maxDocumentSize bounds the request bodies read by the handler.
const maxDocumentSize = 50 << 20

// ActorClaims are the claims of the bearer token presented by actors.
type ActorClaims struct {
	ActorNumber string `json:"actornumber"`
	Role        string `json:"role"`
	Restriction string `json:"restriction,omitempty"`
	jwt.RegisteredClaims
}

// Identity returns the actor the claims describe.
func (c *ActorClaims) Identity() (market.ActorIdentity, error) {
	number := market.ActorNumber(c.ActorNumber)
	if !number.Valid() {
		return market.ActorIdentity{}, errors.Errorf("invalid actor number %q", c.ActorNumber)
	}
	role, ok := market.ParseActorRoleName(c.Role)
	if !ok {
		return market.ActorIdentity{}, errors.Errorf("unknown role %q", c.Role)
	}
	id := market.ActorIdentity{Number: number, Role: role}
	if strings.EqualFold(c.Restriction, market.RestrictionOwned.String()) {
		id.Restriction = market.RestrictionOwned
	}
	return id, nil
}

type requestQuery struct {
	Format string `schema:"format"`
}

// Handler serves POST /incoming/{documentType}.
type Handler struct {
	logger   logrus.FieldLogger
	receiver *Receiver
	key      []byte
	decoder  *schema.Decoder
}

var _ http.Handler = (*Handler)(nil)

// NewHandler returns a handler authenticating actors with HMAC-signed bearer
// tokens verified with key.
func NewHandler(logger logrus.FieldLogger, receiver *Receiver, key []byte) *Handler {
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)
	return &Handler{
		logger:   logger,
		receiver: receiver,
		key:      key,
		decoder:  decoder,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	documentType, ok := market.ParseIncomingDocumentType(strings.TrimPrefix(req.URL.Path, "/incoming/"))
	if !ok {
		http.NotFound(w, req)
		return
	}
	actor, err := h.authenticate(req)
	if err != nil {
		h.logger.WithError(err).Debug("Request not authenticated")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	format, err := h.format(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnsupportedMediaType)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, maxDocumentSize))
	if err != nil {
		http.Error(w, "request body could not be read", http.StatusBadRequest)
		return
	}

	res, err := h.receiver.RegisterAndSend(req.Context(), bytes.NewReader(body), format, documentType, actor)
	if err != nil {
		var dispatchErr *DispatchError
		if errors.As(err, &dispatchErr) {
			h.logger.WithError(err).Warn("Message could not be dispatched")
			http.Error(w, "service unavailable", http.StatusServiceUnavailable)
			return
		}
		h.logger.WithError(err).Error("Message could not be handled")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if res.IsErrorResponse {
		w.Header().Set("Content-Type", res.ContentType)
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, res.MessageBody)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) authenticate(req *http.Request) (market.ActorIdentity, error) {
	header := req.Header.Get("Authorization")
	token := strings.TrimPrefix(header, "Bearer ")
	if header == "" || token == header {
		return market.ActorIdentity{}, errors.New("missing bearer token")
	}
	claims := &ActorClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return h.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return market.ActorIdentity{}, errors.Wrap(err, "parsing token")
	}
	return claims.Identity()
}

// format reads the document format from the format query parameter, or from
// the content type when the parameter is absent.
func (h *Handler) format(req *http.Request) (market.DocumentFormat, error) {
	var q requestQuery
	if err := h.decoder.Decode(&q, req.URL.Query()); err != nil {
		return 0, errors.Wrap(err, "decoding query")
	}
	if q.Format != "" {
		f, ok := market.ParseDocumentFormat(q.Format)
		if !ok {
			return 0, errors.Errorf("unsupported format %q", q.Format)
		}
		return f, nil
	}
	contentType := strings.ToLower(req.Header.Get("Content-Type"))
	switch {
	case strings.Contains(contentType, "json"):
		return market.DocumentFormatJSON, nil
	case strings.Contains(contentType, "xml"):
		return market.DocumentFormatXML, nil
	}
	return 0, errors.Errorf("unsupported content type %q", contentType)
}
