package receiver

import (
	"encoding/json"

	"github.com/beevik/etree"
	"github.com/pkg/errors"

	"github.com/gridexchange/edi-gateway/incoming"
	"github.com/gridexchange/edi-gateway/market"
)

// Response is the answer given to the sender of a message.
type Response struct {
	IsErrorResponse bool
	MessageBody     string
	ContentType     string
}

const (
	errorCode    = "BadRequest"
	errorMessage = "Multiple errors in message"
)

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Target  string `json:"target,omitempty"`
}

type errorBody struct {
	Error struct {
		Code    string        `json:"code"`
		Message string        `json:"message"`
		Details []errorDetail `json:"details"`
	} `json:"error"`
}

// errorResponse lists every error in the format of the request. ebIX
// senders get the XML rendering.
func errorResponse(format market.DocumentFormat, errs []incoming.ValidationError) (Response, error) {
	var (
		body string
		err  error
	)
	if format == market.DocumentFormatJSON {
		body, err = jsonErrorBody(errs)
	} else {
		body, err = xmlErrorBody(errs)
	}
	if err != nil {
		return Response{}, err
	}
	return Response{
		IsErrorResponse: true,
		MessageBody:     body,
		ContentType:     format.ContentType(),
	}, nil
}

func jsonErrorBody(errs []incoming.ValidationError) (string, error) {
	var b errorBody
	b.Error.Code = errorCode
	b.Error.Message = errorMessage
	b.Error.Details = make([]errorDetail, 0, len(errs))
	for _, e := range errs {
		b.Error.Details = append(b.Error.Details, errorDetail{Code: e.Code, Message: e.Message, Target: e.Target})
	}
	blob, err := json.Marshal(b)
	if err != nil {
		return "", errors.Wrap(err, "encoding error response")
	}
	return string(blob), nil
}

func xmlErrorBody(errs []incoming.ValidationError) (string, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement("Error")
	root.CreateElement("Code").SetText(errorCode)
	root.CreateElement("Message").SetText(errorMessage)
	details := root.CreateElement("Details")
	for _, e := range errs {
		d := details.CreateElement("Error")
		d.CreateElement("Code").SetText(e.Code)
		d.CreateElement("Message").SetText(e.Message)
		if e.Target != "" {
			d.CreateElement("Target").SetText(e.Target)
		}
	}
	body, err := doc.WriteToString()
	return body, errors.Wrap(err, "encoding error response")
}
