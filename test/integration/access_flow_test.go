//go:build integration

package integration

import (
	"context"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/eliteGoblin/focusd/site_mon/internal/domain"
	"github.com/eliteGoblin/focusd/site_mon/internal/policy"
	"github.com/eliteGoblin/focusd/site_mon/internal/usecase"
)

var _ = Describe("Access flow", func() {
	var (
		s   *stack
		ctx context.Context
	)

	BeforeEach(func() {
		s = newStack()
		ctx = context.Background()
	})

	AfterEach(func() {
		s.Close()
	})

	grant := func(d string, minutes int) usecase.Response {
		resp, err := s.client.Send(ctx, usecase.Request{
			Action:        usecase.ActionSavePermission,
			Domain:        d,
			Justification: "checking a message from the school group",
			Minutes:       minutes,
		})
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	Describe("Navigation gating", func() {
		Context("when a site is on the block list", func() {
			It("should send the tab to the justification page", func() {
				v, err := s.client.Navigate(ctx, topLevel(1, "https://www.facebook.com/feed"))
				Expect(err).NotTo(HaveOccurred())
				Expect(v.Action).To(Equal(domain.ActionRedirect))
				Expect(v.RedirectURL).To(HavePrefix("chrome-extension://sitemon/justify.html?url="))
				Expect(v.RedirectURL).To(ContainSubstring("www.facebook.com"))
			})
		})

		Context("when a site is not listed or its rule is disabled", func() {
			It("should let the navigation through", func() {
				for _, u := range []string{"https://example.com/", "https://www.youtube.com/watch?v=1"} {
					v, err := s.client.Navigate(ctx, topLevel(1, u))
					Expect(err).NotTo(HaveOccurred())
					Expect(v.Action).To(Equal(domain.ActionProceed), u)
				}
			})
		})

		Context("when the navigation is a redirect hop", func() {
			It("should let the hop through and gate the destination", func() {
				v, err := s.client.Navigate(ctx, topLevel(4, "https://l.facebook.com/l.php?u=https%3A%2F%2Freddit.com%2Fr%2Fgolang"))
				Expect(err).NotTo(HaveOccurred())
				Expect(v.Action).To(Equal(domain.ActionProceed))
				Expect(s.gate.PendingCount()).To(Equal(1))

				v, err = s.client.Navigate(ctx, topLevel(4, "https://reddit.com/r/golang"))
				Expect(err).NotTo(HaveOccurred())
				Expect(v.Action).To(Equal(domain.ActionRedirect))
				Expect(s.gate.PendingCount()).To(Equal(0))
			})
		})

		Context("when the event is for a sub-frame", func() {
			It("should be ignored", func() {
				v, err := s.client.Navigate(ctx, domain.NavigationEvent{URL: "https://www.facebook.com/plugin", TabID: 1, FrameID: 3})
				Expect(err).NotTo(HaveOccurred())
				Expect(v.Action).To(Equal(domain.ActionProceed))
			})
		})
	})

	Describe("Justified sessions", func() {
		It("should allow the site until the session ends, then lock it for the cooldown", func() {
			resp := grant("www.facebook.com", 5)
			Expect(resp.ExpiresAt).NotTo(BeNil())
			Expect(*resp.ExpiresAt).To(BeTemporally("==", t0.Add(5*time.Minute)))
			Expect(*resp.CooldownUntil).To(BeTemporally("==", t0.Add(35*time.Minute)))

			at, ok := s.scheduler.At(policy.ExpiryTimerName("www.facebook.com"))
			Expect(ok).To(BeTrue())
			Expect(at).To(BeTemporally("==", t0.Add(5*time.Minute)))

			v, err := s.client.Navigate(ctx, topLevel(1, "https://www.facebook.com/feed"))
			Expect(err).NotTo(HaveOccurred())
			Expect(v.Action).To(Equal(domain.ActionProceed))

			status, err := s.client.Send(ctx, usecase.Request{Action: usecase.ActionCheckPermissionStatus, Domain: "www.facebook.com"})
			Expect(err).NotTo(HaveOccurred())
			Expect(status.Status).To(Equal(domain.StatusActive))

			Expect(s.expire("www.facebook.com")).To(Succeed())

			status, err = s.client.Send(ctx, usecase.Request{Action: usecase.ActionCheckPermissionStatus, Domain: "www.facebook.com"})
			Expect(err).NotTo(HaveOccurred())
			Expect(status.Status).To(Equal(domain.StatusCooldown))

			v, err = s.client.Navigate(ctx, topLevel(2, "https://www.facebook.com/"))
			Expect(err).NotTo(HaveOccurred())
			Expect(v.Action).To(Equal(domain.ActionRedirect))
			Expect(v.RedirectURL).To(HavePrefix("chrome-extension://sitemon/blocked.html"))
		})

		It("should reject an empty justification", func() {
			_, err := s.client.Send(ctx, usecase.Request{
				Action:        usecase.ActionSavePermission,
				Domain:        "reddit.com",
				Justification: "   ",
				Minutes:       5,
			})
			Expect(err).To(HaveOccurred())
		})

		It("should record every grant in the usage log", func() {
			grant("www.facebook.com", 5)
			s.clock.Advance(time.Minute)
			grant("reddit.com", 10)

			resp, err := s.client.Send(ctx, usecase.Request{Action: usecase.ActionGetUsageLogs})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.UsageLogs).To(HaveLen(2))
			Expect(resp.UsageLogs[0].Domain).To(Equal("reddit.com"), "newest first")

			resp, err = s.client.Send(ctx, usecase.Request{Action: usecase.ActionGetUsageStats})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Stats.TotalSessions).To(Equal(2))
			Expect(resp.Stats.TotalMinutes).To(Equal(15))
		})
	})

	Describe("Expiry sweep", func() {
		It("should queue a redirect for every open tab on the expired site", func() {
			grant("www.facebook.com", 5)
			for tab, u := range map[int]string{
				1: "https://www.facebook.com/groups/123",
				2: "https://example.com/",
				3: "https://www.facebook.com/marketplace",
			} {
				_, err := s.client.Navigate(ctx, topLevel(tab, u))
				Expect(err).NotTo(HaveOccurred())
			}

			Expect(s.expire("www.facebook.com")).To(Succeed())

			cmds, err := s.client.TabCommands(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(cmds).To(HaveLen(2))
			for _, c := range cmds {
				Expect(c.TabID).To(BeElementOf(1, 3))
				Expect(c.URL).To(HavePrefix("chrome-extension://sitemon/blocked.html"))
			}

			cmds, err = s.client.TabCommands(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(cmds).To(BeEmpty(), "commands are handed out once")

			Expect(s.scrape()).To(ContainSubstring(`sitemon_expiry_sweeps_total{result="redirected"} 1`))
		})

		It("should skip tabs that were closed", func() {
			grant("www.facebook.com", 5)
			_, err := s.client.Navigate(ctx, topLevel(7, "https://www.facebook.com/"))
			Expect(err).NotTo(HaveOccurred())
			Expect(s.client.CloseTab(ctx, 7)).To(Succeed())

			Expect(s.expire("www.facebook.com")).To(Succeed())

			cmds, err := s.client.TabCommands(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(cmds).To(BeEmpty())
		})

		It("should do nothing when the timer fires while the session is still open", func() {
			grant("www.facebook.com", 5)
			_, err := s.client.Navigate(ctx, topLevel(1, "https://www.facebook.com/"))
			Expect(err).NotTo(HaveOccurred())

			Expect(s.gate.HandleExpiry(ctx, policy.ExpiryTimerName("www.facebook.com"))).To(Succeed())

			cmds, err := s.client.TabCommands(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(cmds).To(BeEmpty())
		})
	})

	Describe("Emergency override", func() {
		BeforeEach(func() {
			grant("www.facebook.com", 5)
			Expect(s.expire("www.facebook.com")).To(Succeed())
		})

		Context("with the wrong code", func() {
			It("should fail and leave the site locked", func() {
				_, err := s.client.Send(ctx, usecase.Request{
					Action: usecase.ActionCheckEmergencyCode,
					Domain: "www.facebook.com",
					Code:   "WRONG",
				})
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring(usecase.MsgInvalidCode))

				v, err := s.client.Navigate(ctx, topLevel(1, "https://www.facebook.com/"))
				Expect(err).NotTo(HaveOccurred())
				Expect(v.Action).To(Equal(domain.ActionRedirect))
			})
		})

		Context("with the right code", func() {
			It("should open a default-length session through the cooldown", func() {
				resp, err := s.client.Send(ctx, usecase.Request{
					Action: usecase.ActionCheckEmergencyCode,
					Domain: "www.facebook.com",
					Code:   emergencyCode,
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(*resp.ExpiresAt).To(BeTemporally("==", s.clock.Now().Add(5*time.Minute)))

				v, err := s.client.Navigate(ctx, topLevel(1, "https://www.facebook.com/"))
				Expect(err).NotTo(HaveOccurred())
				Expect(v.Action).To(Equal(domain.ActionProceed))

				logs, err := s.client.Send(ctx, usecase.Request{Action: usecase.ActionGetUsageLogs, Limit: 1})
				Expect(err).NotTo(HaveOccurred())
				Expect(logs.UsageLogs).To(HaveLen(1))
				Expect(logs.UsageLogs[0].WasEmergencyOverride).To(BeTrue())
				Expect(logs.UsageLogs[0].Justification).To(Equal(domain.EmergencyJustification))
			})
		})
	})

	Describe("Access attempts", func() {
		It("should count attempts per day", func() {
			for i := 0; i < 3; i++ {
				_, err := s.client.Send(ctx, usecase.Request{Action: usecase.ActionRecordAccessAttempt, Domain: "reddit.com"})
				Expect(err).NotTo(HaveOccurred())
				s.clock.Advance(time.Minute)
			}

			resp, err := s.client.Send(ctx, usecase.Request{Action: usecase.ActionGetAccessAttempts, Domain: "reddit.com"})
			Expect(err).NotTo(HaveOccurred())
			Expect(*resp.Count).To(Equal(3))
			Expect(*resp.LastAttempt).To(BeTemporally("==", t0.Add(2*time.Minute)))

			s.clock.Advance(24 * time.Hour)
			resp, err = s.client.Send(ctx, usecase.Request{Action: usecase.ActionGetAccessAttempts, Domain: "reddit.com"})
			Expect(err).NotTo(HaveOccurred())
			Expect(*resp.Count).To(Equal(0))
		})
	})

	Describe("Block list edits", func() {
		It("should take effect on the next navigation", func() {
			resp, err := s.client.Send(ctx, usecase.Request{Action: usecase.ActionGetBlockedDomains})
			Expect(err).NotTo(HaveOccurred())
			rules := append(resp.BlockedDomains, domain.BlockRule{Pattern: "https://News.YCombinator.com/item?id=1", Enabled: true})

			resp, err = s.client.Send(ctx, usecase.Request{Action: usecase.ActionUpdateBlockedDomains, BlockedDomains: rules})
			Expect(err).NotTo(HaveOccurred())

			patterns := make([]string, 0, len(resp.BlockedDomains))
			for _, r := range resp.BlockedDomains {
				patterns = append(patterns, r.Pattern)
			}
			Expect(strings.Join(patterns, ",")).To(ContainSubstring("news.ycombinator.com"))

			v, err := s.client.Navigate(ctx, topLevel(1, "https://news.ycombinator.com/"))
			Expect(err).NotTo(HaveOccurred())
			Expect(v.Action).To(Equal(domain.ActionRedirect))
		})
	})
})
