// Package outcomes submits and reads grades through the IMS LIS Basic
// Outcomes service: OAuth1-signed Plain Old XML POSTs to the
// lis_outcome_service_url carried on student launches.
package outcomes

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/edbridge/annolti/internal/oauth1"
)

type Client struct {
	HTTP *http.Client
}

func NewClient() *Client {
	return &Client{HTTP: &http.Client{Timeout: 9 * time.Second}}
}

type envelope struct {
	XMLName xml.Name `xml:"imsx_POXEnvelopeRequest"`
	XMLNS   string   `xml:"xmlns,attr"`
	Header  header   `xml:"imsx_POXHeader"`
	Body    body     `xml:"imsx_POXBody"`
}

type header struct {
	Info headerInfo `xml:"imsx_POXRequestHeaderInfo"`
}

type headerInfo struct {
	Version   string `xml:"imsx_version"`
	MessageID string `xml:"imsx_messageIdentifier"`
}

type body struct {
	Replace *replaceResultRequest `xml:"replaceResultRequest,omitempty"`
	Read    *readResultRequest    `xml:"readResultRequest,omitempty"`
}

type replaceResultRequest struct {
	ResultRecord resultRecord `xml:"resultRecord"`
}

type readResultRequest struct {
	ResultRecord resultRecord `xml:"resultRecord"`
}

type resultRecord struct {
	SourcedGUID sourcedGUID `xml:"sourcedGUID"`
	Result      *result     `xml:"result,omitempty"`
}

type sourcedGUID struct {
	SourcedID string `xml:"sourcedId"`
}

type result struct {
	Score resultScore `xml:"resultScore"`
}

type resultScore struct {
	Language string `xml:"language"`
	Value    string `xml:"textString"`
}

const poxNS = "http://www.imsglobal.org/services/ltiv1p1/xsd/imsoms_v1p0"

// ReplaceResult posts a score in [0,1] for the sourced id.
func (c *Client) ReplaceResult(ctx context.Context, serviceURL, sourcedID string, score float64, consumerKey, sharedSecret string) error {
	if score < 0 || score > 1 {
		return fmt.Errorf("outcomes: score %v out of range [0,1]", score)
	}
	env := envelope{
		XMLNS:  poxNS,
		Header: header{Info: headerInfo{Version: "V1.0", MessageID: uuid.NewString()}},
		Body: body{Replace: &replaceResultRequest{ResultRecord: resultRecord{
			SourcedGUID: sourcedGUID{SourcedID: sourcedID},
			Result:      &result{Score: resultScore{Language: "en", Value: strconv.FormatFloat(score, 'f', -1, 64)}},
		}}},
	}
	_, err := c.post(ctx, serviceURL, env, consumerKey, sharedSecret)
	return err
}

// ReadResult fetches the current score; ok is false when no score is set.
func (c *Client) ReadResult(ctx context.Context, serviceURL, sourcedID, consumerKey, sharedSecret string) (score float64, ok bool, err error) {
	env := envelope{
		XMLNS:  poxNS,
		Header: header{Info: headerInfo{Version: "V1.0", MessageID: uuid.NewString()}},
		Body: body{Read: &readResultRequest{ResultRecord: resultRecord{
			SourcedGUID: sourcedGUID{SourcedID: sourcedID},
		}}},
	}
	raw, err := c.post(ctx, serviceURL, env, consumerKey, sharedSecret)
	if err != nil {
		return 0, false, err
	}
	var res struct {
		Value string `xml:"imsx_POXBody>readResultResponse>result>resultScore>textString"`
	}
	if err := xml.Unmarshal(raw, &res); err != nil {
		return 0, false, fmt.Errorf("outcomes: undecodable response: %w", err)
	}
	if res.Value == "" {
		return 0, false, nil
	}
	f, err := strconv.ParseFloat(res.Value, 64)
	if err != nil {
		return 0, false, fmt.Errorf("outcomes: non-numeric score %q", res.Value)
	}
	return f, true, nil
}

// post signs the XML body per the LTI body-signing profile: the body's
// SHA-1 goes into oauth_body_hash, the whole request is signed with the
// instance's shared secret.
func (c *Client) post(ctx context.Context, serviceURL string, env envelope, consumerKey, sharedSecret string) ([]byte, error) {
	payload, err := xml.Marshal(env)
	if err != nil {
		return nil, err
	}
	payload = append([]byte(xml.Header), payload...)

	sum := sha1.Sum(payload)
	extra := url.Values{}
	extra.Set("oauth_body_hash", base64.StdEncoding.EncodeToString(sum[:]))
	authz, err := oauth1.AuthorizationHeader(http.MethodPost, serviceURL, extra,
		consumerKey, sharedSecret, uuid.NewString(), time.Now())
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, serviceURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/xml")
	req.Header.Set("Authorization", authz)

	res, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	raw, _ := io.ReadAll(res.Body)
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, fmt.Errorf("outcomes: %s returned %d", serviceURL, res.StatusCode)
	}
	return raw, nil
}
