package adapthttp

import (
	"io"
	"net/http"

	"ngoportal/internal/app"
	"ngoportal/internal/domain"
)

type donationRequest struct {
	DonorName   string `json:"donor_name"`
	DonorEmail  string `json:"donor_email"`
	DonorPhone  string `json:"donor_phone"`
	AmountPaise int64  `json:"amount_paise"`
	Cause       string `json:"cause"`
	Frequency   string `json:"frequency"`
	CSRFToken   string `json:"csrf_token"`
}

func (s *Server) handleDonations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateDonation(w, r)
	case http.MethodGet:
		s.requireAuth(s.handleListDonations)(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleCreateDonation records a pending donation intent and returns
// the signed gateway redirect. The donate form is public but still
// CSRF-guarded through the caller's (possibly anonymous) session.
func (s *Server) handleCreateDonation(w http.ResponseWriter, r *http.Request) {
	var req donationRequest
	if err := parseJSON(r, &req); err != nil {
		s.writeDomainError(w, err)
		return
	}
	if !s.validCSRF(r, req.CSRFToken) {
		s.writeDomainError(w, domain.Errorf(domain.KindAuthorization, "invalid csrf token"))
		return
	}

	intent, err := s.donations.CreateIntent(r.Context(), app.DonationInput{
		DonorName:   req.DonorName,
		DonorEmail:  req.DonorEmail,
		DonorPhone:  req.DonorPhone,
		AmountPaise: req.AmountPaise,
		Cause:       req.Cause,
		Frequency:   domain.Frequency(req.Frequency),
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"success":      true,
		"donation":     donationViewOf(intent.Donation),
		"redirect_url": intent.Request.URL,
		"payload":      intent.Request.Payload,
		"checksum":     intent.Request.Checksum,
	})
}

// handleListDonations returns the authenticated donor's history.
func (s *Server) handleListDonations(w http.ResponseWriter, r *http.Request) {
	status := sessionFrom(r.Context())
	limit := intQuery(r, "limit", 20)

	items, err := s.donations.ListForDonor(r.Context(), status.User.Email, limit)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	views := make([]donationView, 0, len(items))
	for i := range items {
		views = append(views, donationViewOf(&items[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "donations": views})
}

// maxCallbackBody bounds the processor notification size.
const maxCallbackBody = 1 << 20

// handlePaymentCallback receives the gateway's asynchronous
// notification. Accepted deliveries, including idempotent redeliveries,
// are acknowledged with 200 so the gateway stops retrying.
func (s *Server) handlePaymentCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody))
	if err != nil {
		s.writeDomainError(w, domain.WrapErr(domain.KindValidation, err, "unreadable body"))
		return
	}

	payload, err := s.gateway.VerifyCallback(body, r.Header.Get("X-VERIFY"))
	if err != nil {
		s.log.WithError(err).Warn("payment callback rejected")
		s.writeDomainError(w, err)
		return
	}

	if err := s.donations.ApplyCallback(r.Context(), payload); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
