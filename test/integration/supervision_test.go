//go:build integration

package integration

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/supervisor/internal/domain"
	"github.com/eliteGoblin/focusd/supervisor/internal/infra"
	"github.com/eliteGoblin/focusd/supervisor/internal/usecase"
	"github.com/eliteGoblin/focusd/supervisor/test/fixtures"
)

var _ = Describe("Supervision windows", func() {
	var (
		ctx        context.Context
		configPath string
		store      *infra.FileConfigStore
		clock      *fixtures.Clock
		table      *fixtures.ProcessTable
		session    *fixtures.Session
		notifier   *fixtures.Notifier
		service    *usecase.Service
		trigger    *usecase.ActionTriggerImpl
		enforcer   *usecase.EnforcerImpl
		study      domain.SupervisionItem
	)

	BeforeEach(func() {
		ctx = context.Background()
		configPath = filepath.Join(GinkgoT().TempDir(), "config.json")
		logger := zap.NewNop()

		store = infra.NewFileConfigStore(configPath, logger)
		store.Load()
		clock = fixtures.NewClock(at(7, 0))
		table = fixtures.NewProcessTable(4242)
		session = &fixtures.Session{}
		notifier = &fixtures.Notifier{}

		service = usecase.NewService(store, clock, logger)
		trigger = usecase.NewActionTrigger(usecase.TriggerConfig{}, store, session, notifier, nil, clock, logger)
		enforcer = usecase.NewEnforcer(table, store, notifier, nil, clock, logger)

		var err error
		study, err = service.AddItem(domain.SupervisionItem{
			Name:   "Study",
			Start:  "09:00",
			End:    "11:00",
			Action: domain.ActionLock,
		}, false)
		Expect(err).NotTo(HaveOccurred())
		Expect(service.AddBlacklistEntry("", "game.exe")).To(Succeed())
	})

	Context("inside the grace period", func() {
		It("is restricted but does not fire yet", func() {
			clock.Set(at(8, 45))

			Expect(service.IsRestrictedNow()).To(BeTrue())
			Expect(trigger.Tick(ctx)).To(BeEmpty())
			Expect(session.LockCount()).To(Equal(0))
		})

		It("refuses edits and quit", func() {
			clock.Set(at(8, 45))

			err := service.ToggleItemActive(study.ID, false)
			Expect(domain.IsRestriction(err)).To(BeTrue())
			Expect(domain.IsRestriction(service.RequestQuit())).To(BeTrue())
		})
	})

	Context("at the window start", func() {
		It("locks the session once per window", func() {
			clock.Set(at(9, 0))

			fired := trigger.Tick(ctx)
			Expect(fired).To(HaveLen(1))
			Expect(fired[0].Action).To(Equal(domain.ActionLock))
			Expect(fired[0].ItemID).To(Equal(study.ID))
			Expect(session.LockCount()).To(Equal(1))
			Expect(notifier.Alerts()).To(ContainElement(usecase.AlertTitle))

			clock.Set(at(9, 1))
			Expect(trigger.Tick(ctx)).To(BeEmpty())
			Expect(session.LockCount()).To(Equal(1))
		})
	})

	Context("after the window", func() {
		It("allows edits again", func() {
			clock.Set(at(11, 1))

			Expect(service.IsRestrictedNow()).To(BeFalse())
			study.Name = "Study hard"
			Expect(service.UpdateItem(study.ID, study, false)).To(Succeed())
			Expect(service.RequestQuit()).To(Succeed())

			got, err := service.GetItem(study.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Name).To(Equal("Study hard"))
		})
	})

	Context("global blacklist during a window", func() {
		It("kills matching processes in any case and leaves the rest", func() {
			clock.Set(at(9, 30))
			game := table.Spawn("GAME.EXE")
			editor := table.Spawn("notepad.exe")

			result, err := enforcer.Enforce(ctx)

			Expect(err).NotTo(HaveOccurred())
			Expect(result.KilledPIDs).To(ConsistOf(game))
			Expect(table.Alive(game)).To(BeFalse())
			Expect(table.Alive(editor)).To(BeTrue())
			Expect(table.Alive(table.GetCurrentPID())).To(BeTrue())
			Expect(notifier.Notices()).To(ContainElement("Terminated process: GAME.EXE"))
		})

		It("leaves processes alone outside the window", func() {
			clock.Set(at(12, 0))
			game := table.Spawn("game.exe")

			_, err := enforcer.Enforce(ctx)

			Expect(err).NotTo(HaveOccurred())
			Expect(table.Alive(game)).To(BeTrue())
		})
	})

	Context("deleting a restricted item", func() {
		It("is refused and nothing is persisted", func() {
			clock.Set(at(10, 0))
			before, err := os.ReadFile(configPath)
			Expect(err).NotTo(HaveOccurred())

			err = service.DeleteItem(study.ID)

			Expect(domain.IsRestriction(err)).To(BeTrue())
			Expect(service.ListItems()).To(HaveLen(1))
			after, err := os.ReadFile(configPath)
			Expect(err).NotTo(HaveOccurred())
			Expect(after).To(Equal(before))

			reopened := infra.NewFileConfigStore(configPath, zap.NewNop())
			Expect(reopened.Load().Items).To(HaveLen(1))
		})
	})

	It("rejects windows that cross midnight", func() {
		_, err := service.AddItem(domain.SupervisionItem{Name: "Night", Start: "23:00", End: "01:00", Action: domain.ActionShutdown}, false)
		Expect(domain.IsValidation(err)).To(BeTrue())
	})
})
