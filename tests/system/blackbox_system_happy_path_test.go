//go:build system

package system_test

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"dealdesk/internal/domain"
)

var _ = Describe("System blackbox happy path", Ordered, func() {
	var cfg systemTestConfig
	var api *apiClient

	BeforeAll(func() {
		if os.Getenv("RUN_BLACKBOX_SYSTEM_TEST") != "1" {
			Skip("set RUN_BLACKBOX_SYSTEM_TEST=1 to run real blackbox system test")
		}

		cfg = loadSystemTestConfig()
		api = newAPIClient(cfg.APIBaseURL)

		By("failing fast if the deployment is unreachable")
		base := strings.TrimRight(cfg.APIBaseURL, "/")
		Expect(waitForHTTPStatus(base+cfg.APIHealthPath, http.StatusOK, cfg.PreflightTimeout)).To(Succeed())
		Expect(waitForHTTPStatus(base+cfg.APIReadyPath, http.StatusOK, cfg.PreflightTimeout)).To(Succeed())
	})

	It("registers and logs in exactly like a user", func() {
		username := fmt.Sprintf("blackbox-%d", time.Now().UnixNano())

		reg, status, err := api.register(username, "Blackbox Tester", "s3cret-password")
		Expect(err).ToNot(HaveOccurred())
		Expect(status).To(Equal(http.StatusCreated))
		Expect(reg.User.ID).To(BeNumerically(">", 0))
		Expect(reg.User.Username).To(Equal(username))

		auth, status, err := api.login(username, "s3cret-password")
		Expect(err).ToNot(HaveOccurred())
		Expect(status).To(Equal(http.StatusOK))
		Expect(auth.Token).ToNot(BeEmpty())

		api.token = auth.Token
	})

	It("rejects a structurally invalid deal with failed rules", func() {
		var errResp errorResponse
		status, err := api.do(http.MethodPost, "/api/deals", map[string]any{
			"title":       "",
			"type":        "spaceship",
			"description": "not a real deal",
			"amount":      -5,
		}, &errResp)
		Expect(err).ToNot(HaveOccurred())
		Expect(status).To(Equal(http.StatusBadRequest))
		Expect(errResp.FailedRules).ToNot(BeEmpty())
	})

	It("creates a pending property deal", func() {
		deal, status, err := api.createDeal(map[string]any{
			"title":         "Canary Wharf office floor",
			"type":          "property",
			"description":   "Serviced office floor with long leasehold",
			"amount":        250000,
			"property_type": "Commercial",
			"location":      "London",
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(status).To(Equal(http.StatusCreated))
		Expect(deal.ID).To(BeNumerically(">", 0))
		Expect(deal.Status).To(Equal(domain.StatusPending))
		Expect(deal.AIFeedback).To(BeNil())
	})

	It("short-circuits the compliance review of an incomplete insurance deal", func() {
		deal, status, err := api.createDeal(map[string]any{
			"title":       "Fleet liability cover",
			"type":        "insurance",
			"description": "Annual liability policy for delivery fleet",
			"amount":      12000,
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(status).To(Equal(http.StatusCreated))
		Expect(deal.Status).To(Equal(domain.StatusPending))

		By("reviewing the deal; the precondition fails before any external call")
		verdict, status, err := api.reviewDeal(deal.ID)
		Expect(err).ToNot(HaveOccurred())
		Expect(status).To(Equal(http.StatusBadRequest))
		Expect(verdict.Status).To(Equal(domain.StatusRejected))
		Expect(verdict.Feedback).ToNot(BeNil())
		Expect(*verdict.Feedback).To(Equal("Insurance type is required for insurance deals."))

		By("confirming the rejection was persisted")
		deals, status, err := api.getDeals()
		Expect(err).ToNot(HaveOccurred())
		Expect(status).To(Equal(http.StatusOK))
		var found *domain.Deal
		for i := range deals {
			if deals[i].ID == deal.ID {
				found = &deals[i]
			}
		}
		Expect(found).ToNot(BeNil())
		Expect(found.Status).To(Equal(domain.StatusRejected))
		Expect(found.AIFeedback).ToNot(BeNil())

		By("confirming the owner was notified")
		notifications, status, err := api.getNotifications()
		Expect(err).ToNot(HaveOccurred())
		Expect(status).To(Equal(http.StatusOK))
		Expect(notifications).ToNot(BeEmpty())
	})

	It("round-trips a deal image and cleans it up with the deal", func() {
		deal, status, err := api.createDeal(map[string]any{
			"title":         "Detached house in Leeds",
			"type":          "property",
			"description":   "Four bed detached with garden, chain free.",
			"amount":        425000,
			"property_type": "Residential",
			"location":      "Leeds",
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(status).To(Equal(http.StatusCreated))

		By("uploading an image")
		content := []byte("\x89PNG\r\n\x1a\nnot-really-a-png-but-bytes-round-trip")
		upload, status, err := api.uploadImage(deal.ID, "front.png", content)
		Expect(err).ToNot(HaveOccurred())
		Expect(status).To(Equal(http.StatusCreated))
		Expect(upload.ObjectKey).ToNot(BeEmpty())
		Expect(upload.Images).To(ContainElement(upload.ObjectKey))

		By("downloading it back byte for byte")
		name := upload.ObjectKey[strings.LastIndex(upload.ObjectKey, "/")+1:]
		got, status, err := api.downloadImage(deal.ID, name)
		Expect(err).ToNot(HaveOccurred())
		Expect(status).To(Equal(http.StatusOK))
		Expect(got).To(Equal(content))

		By("deleting the deal and losing access to its image")
		status, err = api.deleteDeal(deal.ID)
		Expect(err).ToNot(HaveOccurred())
		Expect(status).To(Equal(http.StatusOK))

		_, status, err = api.downloadImage(deal.ID, name)
		Expect(err).ToNot(HaveOccurred())
		Expect(status).To(Equal(http.StatusNotFound))
	})

	It("reports per-user deal statistics", func() {
		stats, status, err := api.getStats()
		Expect(err).ToNot(HaveOccurred())
		Expect(status).To(Equal(http.StatusOK))
		Expect(stats.Total).To(BeNumerically(">=", 2))
		Expect(stats.Pending).To(BeNumerically(">=", 1))
		Expect(stats.Rejected).To(BeNumerically(">=", 1))
	})

	It("completes a live compliance review when enabled", func() {
		if !cfg.RunLiveReview {
			Skip("set SYSTEM_TEST_LIVE_REVIEW=1 to review a deal against the real compliance service")
		}

		deal, status, err := api.createDeal(map[string]any{
			"title":          "Comprehensive home policy",
			"type":           "insurance",
			"description":    "Buildings and contents cover for a three bed semi",
			"amount":         850,
			"insurance_type": "Home",
			"coverage":       300000,
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(status).To(Equal(http.StatusCreated))

		verdict, status, err := api.reviewDeal(deal.ID)
		Expect(err).ToNot(HaveOccurred())
		Expect(status).To(Equal(http.StatusOK))
		Expect(verdict.Status).To(BeElementOf(domain.StatusApproved, domain.StatusRejected))
		if verdict.Status == domain.StatusRejected {
			Expect(verdict.Feedback).ToNot(BeNil())
		}
	})
})
