// Package soapfeed reads installment plans from banks that publish them as a
// SOAP service.
package soapfeed

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/cuotificador/internal/models"
)

// Client handles integration with a bank's SOAP plan feed
type Client struct {
	url    string
	client *http.Client
	log    *logrus.Logger
}

// NewClient initializes a new SOAP feed client
func NewClient(url string, log *logrus.Logger) *Client {
	return &Client{
		url: url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		log: log,
	}
}

// buildSOAPRequest creates a SOAP request for a bank's plans
func (c *Client) buildSOAPRequest(bank models.Bank) string {
	var apiKey string
	if bank.APICredentials != nil {
		apiKey = bank.APICredentials.APIKey
	}
	return fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
		<soap12:Envelope xmlns:soap12="http://www.w3.org/2003/05/soap-envelope">
			<soap12:Body>
				<InstallmentPlans xmlns="http://cuotificador.ar/feed/">
					<BankCode>%s</BankCode>
					<ApiKey>%s</ApiKey>
				</InstallmentPlans>
			</soap12:Body>
		</soap12:Envelope>`, escape(bank.Code), escape(apiKey))
}

// sendRequest sends the SOAP request to the feed
func (c *Client) sendRequest(ctx context.Context, soapRequest string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewBufferString(soapRequest))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/soap+xml; charset=utf-8")
	req.Header.Set("SOAPAction", "http://cuotificador.ar/feed/InstallmentPlans")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &models.ProviderError{Code: "unreachable", Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &models.ProviderError{Code: strconv.Itoa(resp.StatusCode), Message: "unexpected status code"}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &models.ProviderError{Code: "unreachable", Message: "failed to read response", Err: err}
	}

	c.log.Debugf("SOAP feed XML response: %s", string(body))
	return body, nil
}

// parseXMLResponse extracts the plans from the SOAP response
func (c *Client) parseXMLResponse(rawBody []byte) ([]models.ExternalInstallmentPlan, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(rawBody); err != nil {
		return nil, &models.ProviderError{Code: "invalid_response", Message: "failed to parse XML", Err: err}
	}

	if fault := doc.FindElement("//Fault"); fault != nil {
		code := "fault"
		if el := fault.FindElement(".//Value"); el != nil {
			code = strings.TrimSpace(el.Text())
		}
		msg := ""
		if el := fault.FindElement(".//Text"); el != nil {
			msg = strings.TrimSpace(el.Text())
		}
		return nil, &models.ProviderError{Code: code, Message: msg}
	}

	planElements := doc.FindElements("//Plans/Plan")
	plans := make([]models.ExternalInstallmentPlan, 0, len(planElements))
	for i, el := range planElements {
		cardCode := childText(el, "CardCode")
		n, err := strconv.Atoi(childText(el, "Installments"))
		if err != nil {
			return nil, &models.ProviderError{Code: "invalid_response", Message: fmt.Sprintf("plan %d: bad installments", i+1), Err: err}
		}
		rate, err := decimal.NewFromString(childText(el, "Rate"))
		if err != nil {
			return nil, &models.ProviderError{Code: "invalid_response", Message: fmt.Sprintf("plan %d: bad rate", i+1), Err: err}
		}
		plans = append(plans, models.ExternalInstallmentPlan{CardCode: cardCode, Installments: n, InterestRate: rate})
	}
	return plans, nil
}

// FetchPlans retrieves the bank's current plans
func (c *Client) FetchPlans(ctx context.Context, bank models.Bank) ([]models.ExternalInstallmentPlan, error) {
	body, err := c.sendRequest(ctx, c.buildSOAPRequest(bank))
	if err != nil {
		return nil, err
	}
	plans, err := c.parseXMLResponse(body)
	if err != nil {
		return nil, err
	}
	c.log.Infof("Retrieved %d plans from SOAP feed for bank %s", len(plans), bank.Code)
	return plans, nil
}

// CalculateInstallments is not offered by SOAP feeds; callers fall back to local rates
func (c *Client) CalculateInstallments(_ context.Context, bank models.Bank, _ models.ExternalCalculationRequest) (models.ExternalCalculation, error) {
	return models.ExternalCalculation{}, &models.ProviderError{
		Code:    "unsupported",
		Message: fmt.Sprintf("bank %s publishes plans only", bank.Code),
	}
}

func childText(el *etree.Element, tag string) string {
	if child := el.FindElement("./" + tag); child != nil {
		return strings.TrimSpace(child.Text())
	}
	return ""
}

func escape(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
