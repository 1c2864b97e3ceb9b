package cbr

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/loan-service/internal/config"
	"github.com/Dan9191/loan-service/internal/money"
)

// bankMargin is added on top of the key rate, in percentage points.
var bankMargin = money.MustRate("5")

// ReferenceRate is the central bank key rate and the rate offered on top of it.
type ReferenceRate struct {
	KeyRate   money.Rate `json:"key_rate"`
	Margin    money.Rate `json:"margin"`
	Rate      money.Rate `json:"rate"`
	Published time.Time  `json:"published,omitempty"`
}

// CBRClient handles integration with Central Bank of Russia
type CBRClient struct {
	url    string
	client *http.Client
	log    *logrus.Logger
	now    func() time.Time
}

// NewCBRClient initializes a new CBR client
func NewCBRClient(cfg *config.Config, log *logrus.Logger) *CBRClient {
	return &CBRClient{
		url: cfg.CBRURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		log: log,
		now: time.Now,
	}
}

// buildSOAPRequest creates a SOAP request for the key rates of the last 30 days
func (c *CBRClient) buildSOAPRequest() string {
	now := c.now()
	fromDate := now.AddDate(0, 0, -30).Format("2006-01-02")
	toDate := now.Format("2006-01-02")
	return fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
		<soap12:Envelope xmlns:soap12="http://www.w3.org/2003/05/soap-envelope">
			<soap12:Body>
				<KeyRate xmlns="http://web.cbr.ru/">
					<fromDate>%s</fromDate>
					<ToDate>%s</ToDate>
				</KeyRate>
			</soap12:Body>
		</soap12:Envelope>`, fromDate, toDate)
}

// sendRequest sends SOAP request to CBR
func (c *CBRClient) sendRequest(ctx context.Context, soapRequest string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewBufferString(soapRequest))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/soap+xml; charset=utf-8")
	req.Header.Set("SOAPAction", "http://web.cbr.ru/KeyRate")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	c.log.Debugf("CBR XML response: %s", string(body))
	return body, nil
}

// parseXMLResponse extracts the latest key rate and its date
func parseXMLResponse(rawBody []byte) (money.Rate, time.Time, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(rawBody); err != nil {
		return money.ZeroRate, time.Time{}, fmt.Errorf("failed to parse XML: %w", err)
	}

	krElements := doc.FindElements("//diffgram/KeyRate/KR")
	if len(krElements) == 0 {
		return money.ZeroRate, time.Time{}, fmt.Errorf("no key rate data found in XML")
	}

	// The service lists the most recent rate first.
	latestKR := krElements[0]
	rateElement := latestKR.FindElement("./Rate")
	if rateElement == nil {
		return money.ZeroRate, time.Time{}, fmt.Errorf("rate element not found in XML")
	}
	rate, err := money.NewRate(strings.TrimSpace(rateElement.Text()))
	if err != nil {
		return money.ZeroRate, time.Time{}, fmt.Errorf("failed to parse rate: %w", err)
	}

	var published time.Time
	if dt := latestKR.FindElement("./DT"); dt != nil {
		if t, err := time.Parse(time.RFC3339, strings.TrimSpace(dt.Text())); err == nil {
			published = t
		}
	}
	return rate, published, nil
}

// GetKeyRate retrieves the current key rate from CBR and adds bank margin
func (c *CBRClient) GetKeyRate(ctx context.Context) (ReferenceRate, error) {
	body, err := c.sendRequest(ctx, c.buildSOAPRequest())
	if err != nil {
		return ReferenceRate{}, err
	}

	keyRate, published, err := parseXMLResponse(body)
	if err != nil {
		return ReferenceRate{}, err
	}

	ref := ReferenceRate{
		KeyRate:   keyRate,
		Margin:    bankMargin,
		Rate:      keyRate.Add(bankMargin),
		Published: published,
	}
	c.log.Infof("Retrieved key rate: %s%% (including %s%% bank margin)", ref.Rate, bankMargin)
	return ref, nil
}
