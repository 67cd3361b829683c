package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"studyhub-quiz-service/internal/domain"
)

// IssuerOptions configure a CertificateIssuer.
type IssuerOptions struct {
	// OnePerCourse returns the existing certificate instead of issuing another one.
	OnePerCourse bool
	Timeout      time.Duration
	Now          func() time.Time
	NewCode      func() (string, error)
}

// CertificateIssuer gates certificates on merged course completion.
type CertificateIssuer struct {
	progress  ProgressStore
	certs     CertificateStore
	telemetry *Telemetry
	opts      IssuerOptions
}

func NewCertificateIssuer(progress ProgressStore, certs CertificateStore, telemetry *Telemetry, opts IssuerOptions) *CertificateIssuer {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewCode == nil {
		opts.NewCode = domain.NewVerificationCode
	}
	return &CertificateIssuer{progress: progress, certs: certs, telemetry: telemetry, opts: opts}
}

// Issue creates a certificate when the user's completion for the course is at
// least domain.CertificateThreshold; otherwise it returns *domain.IneligibleError.
func (i *CertificateIssuer) Issue(ctx context.Context, userID, courseID string) (domain.Certificate, error) {
	ctx, cancel := withTimeout(ctx, i.opts.Timeout)
	defer cancel()

	progress, ok, err := i.progress.GetProgress(ctx, userID, courseID)
	if err != nil {
		return domain.Certificate{}, storeErr("read progress", err)
	}
	if !ok || !domain.Eligible(progress.CompletionPercentage) {
		return domain.Certificate{}, &domain.IneligibleError{
			UserID:     userID,
			CourseID:   courseID,
			Completion: progress.CompletionPercentage,
		}
	}

	if i.opts.OnePerCourse {
		existing, err := i.certs.ListCertificates(ctx, userID)
		if err != nil {
			return domain.Certificate{}, storeErr("list certificates", err)
		}
		for _, cert := range existing {
			if cert.CourseID == courseID {
				return cert, nil
			}
		}
	}

	code, err := i.opts.NewCode()
	if err != nil {
		return domain.Certificate{}, err
	}
	cert := domain.Certificate{
		ID:               uuid.NewString(),
		UserID:           userID,
		CourseID:         courseID,
		VerificationCode: code,
		IssuedAt:         i.opts.Now().UTC(),
	}
	if err := i.certs.InsertCertificate(ctx, cert); err != nil {
		return domain.Certificate{}, storeErr("insert certificate", err)
	}

	i.telemetry.Track("certificate_issued", map[string]any{
		"userId":   userID,
		"courseId": courseID,
	})
	return cert, nil
}

// Verify looks a certificate up by its verification code.
func (i *CertificateIssuer) Verify(ctx context.Context, code string) (domain.Certificate, error) {
	ctx, cancel := withTimeout(ctx, i.opts.Timeout)
	defer cancel()
	cert, err := i.certs.FindCertificate(ctx, code)
	return cert, storeErr("find certificate", err)
}

// List returns the certificates issued to a user.
func (i *CertificateIssuer) List(ctx context.Context, userID string) ([]domain.Certificate, error) {
	ctx, cancel := withTimeout(ctx, i.opts.Timeout)
	defer cancel()
	certs, err := i.certs.ListCertificates(ctx, userID)
	return certs, storeErr("list certificates", err)
}
