package dialer

import (
	"bytes"
	"encoding/json"
	"strings"

	"leadflow_backend/internal/leadsync/ports"
)

const newLeadStatus = "NEW"

type pushRequest struct {
	CampName string       `json:"campname"`
	QName    string       `json:"qname"`
	ListName string       `json:"listname"`
	Data     []pushRecord `json:"data"`
}

type pushRecord struct {
	FirstName   string `json:"firstname"`
	PhoneNumber string `json:"phonenumber"`
	Status      string `json:"status"`
	Address1    string `json:"address1"`
	Comments    string `json:"comments"`
}

func newPushRequest(push ports.DialerPush) pushRequest {
	req := pushRequest{
		CampName: push.Target.Campaign,
		QName:    push.Target.Queue,
		ListName: push.Target.List,
		Data:     make([]pushRecord, 0, len(push.Records)),
	}
	for _, rec := range push.Records {
		req.Data = append(req.Data, pushRecord{
			FirstName:   rec.FirstName,
			PhoneNumber: rec.PhoneNumber,
			Status:      newLeadStatus,
			Address1:    rec.Address,
			Comments:    rec.Comments,
		})
	}
	return req
}

// apiResponse is the dialer's lead push answer.
type apiResponse struct {
	Response    string           `json:"Response"`
	FailureList []apiFailedEntry `json:"failure_list"`
	Total       int              `json:"total"`
	Pass        int              `json:"pass"`
	Fail        int              `json:"fail"`
}

type apiFailedEntry struct {
	FirstName    string      `json:"firstname"`
	PhoneNumber  phoneNumber `json:"phonenumber"`
	Status       string      `json:"status"`
	FailureCause string      `json:"failure_cause"`
}

// phoneNumber accepts the dialer's phone as a JSON string, number or null.
type phoneNumber string

func (p *phoneNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*p = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = phoneNumber(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*p = phoneNumber(n.String())
	return nil
}
