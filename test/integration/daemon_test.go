//go:build integration

package integration

import (
	"context"
	"time"

	"go.uber.org/zap"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/eliteGoblin/focusd/site_mon/internal/client"
	"github.com/eliteGoblin/focusd/site_mon/internal/daemon"
	"github.com/eliteGoblin/focusd/site_mon/internal/domain"
	"github.com/eliteGoblin/focusd/site_mon/internal/usecase"
)

var _ = Describe("Daemon", func() {
	var (
		c      *client.Client
		cancel context.CancelFunc
		done   chan error
	)

	start := func(dataDir string, ephemeral bool) {
		config := daemon.DefaultConfig()
		config.ListenAddr = "127.0.0.1:0"
		config.DataDir = dataDir
		config.Ephemeral = ephemeral
		config.Version = "integration"

		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		d := daemon.New(config, zap.NewNop())
		done = make(chan error, 1)
		go func() { done <- d.Run(ctx) }()

		Eventually(d.Ready(), 10*time.Second).Should(BeClosed())
		c = client.New("http://" + d.Addr())
	}

	stop := func() {
		cancel()
		Eventually(done, 10*time.Second).Should(Receive(BeNil()))
	}

	Context("when running with in-memory state", func() {
		BeforeEach(func() {
			start(GinkgoT().TempDir(), true)
		})

		AfterEach(func() {
			stop()
		})

		It("should report health", func() {
			h, err := c.Health(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(h.OK).To(BeTrue())
			Expect(h.Version).To(Equal("integration"))
		})

		It("should install the default block list on first run", func() {
			ctx := context.Background()
			resp, err := c.Send(ctx, usecase.Request{Action: usecase.ActionGetBlockedDomains})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.BlockedDomains).To(ContainElement(domain.BlockRule{Pattern: "*.facebook.com", Enabled: true}))

			settings, err := c.Send(ctx, usecase.Request{Action: usecase.ActionGetSettings})
			Expect(err).NotTo(HaveOccurred())
			Expect(settings.Settings.EmergencyCode).NotTo(BeEmpty())

			v, err := c.Navigate(ctx, topLevel(1, "https://m.facebook.com/"))
			Expect(err).NotTo(HaveOccurred())
			Expect(v.Action).To(Equal(domain.ActionRedirect))
		})
	})

	Context("when running with encrypted state on disk", func() {
		It("should keep grants and settings across a restart", func() {
			ctx := context.Background()
			dir := GinkgoT().TempDir()

			start(dir, false)
			_, err := c.Send(ctx, usecase.Request{
				Action:        usecase.ActionSavePermission,
				Domain:        "www.facebook.com",
				Justification: "reply to the landlord",
				Minutes:       30,
			})
			Expect(err).NotTo(HaveOccurred())
			stop()

			start(dir, false)
			defer stop()

			status, err := c.Send(ctx, usecase.Request{Action: usecase.ActionCheckPermissionStatus, Domain: "www.facebook.com"})
			Expect(err).NotTo(HaveOccurred())
			Expect(status.Status).To(Equal(domain.StatusActive))

			logs, err := c.Send(ctx, usecase.Request{Action: usecase.ActionGetUsageLogs})
			Expect(err).NotTo(HaveOccurred())
			Expect(logs.UsageLogs).To(HaveLen(1))
			Expect(logs.UsageLogs[0].Justification).To(Equal("reply to the landlord"))
		})
	})
})
