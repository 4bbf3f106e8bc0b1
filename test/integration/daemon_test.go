//go:build integration

package integration

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/supervisor/internal/daemon"
	"github.com/eliteGoblin/focusd/supervisor/internal/domain"
	"github.com/eliteGoblin/focusd/supervisor/internal/infra"
	"github.com/eliteGoblin/focusd/supervisor/internal/usecase"
	"github.com/eliteGoblin/focusd/supervisor/test/fixtures"
)

const tick = 10 * time.Millisecond

var _ = Describe("Daemons", func() {
	var (
		tmpDir   string
		store    *infra.FileConfigStore
		clock    *fixtures.Clock
		table    *fixtures.ProcessTable
		launcher *fixtures.Launcher
		session  *fixtures.Session
		journal  *infra.EncryptedJournal
		logger   *zap.Logger
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		logger = zap.NewNop()

		store = infra.NewFileConfigStore(filepath.Join(tmpDir, "config.json"), logger)
		store.Load()
		Expect(store.Update(func(cfg *domain.Config) error {
			cfg.Items = append(cfg.Items, domain.SupervisionItem{
				ID: "item-study", Name: "Study", Start: "09:00", End: "11:00",
				Action: domain.ActionLock, Active: true, Blacklist: []domain.BlacklistEntry{},
			})
			cfg.GlobalBlacklist = append(cfg.GlobalBlacklist, domain.BlacklistEntry{Name: "game.exe", Active: true})
			return nil
		})).To(Succeed())

		clock = fixtures.NewClock(at(9, 30))
		table = fixtures.NewProcessTable(4242)
		launcher = &fixtures.Launcher{Table: table}
		session = &fixtures.Session{}

		var err error
		journal, err = infra.OpenJournal(filepath.Join(tmpDir, "journal.db"),
			infra.NewFileKeyProvider(filepath.Join(tmpDir, ".journal.key")))
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(journal.Close)
	})

	newSupervisor := func() *daemon.Supervisor {
		notifier := &fixtures.Notifier{}
		trigger := usecase.NewActionTrigger(usecase.TriggerConfig{}, store, session, notifier, journal, clock, logger)
		enforcer := usecase.NewEnforcer(table, store, notifier, journal, clock, logger)
		return daemon.NewSupervisor(
			daemon.SupervisorConfig{
				TimeLoopInterval:      tick,
				ProcessLoopInterval:   tick,
				HeartbeatInterval:     tick,
				GuardianCheckInterval: tick,
			},
			trigger,
			enforcer,
			store,
			infra.NewInstanceLockWithPath(filepath.Join(tmpDir, "supervisor.lock"), table),
			journal,
			table,
			launcher,
			infra.NewConfigWatcher(store, tick, logger),
			domain.Daemon{PID: table.GetCurrentPID(), Role: domain.RoleSupervisor, StartedAt: time.Now(), AppVersion: "test"},
			logger,
		)
	}

	start := func(r daemon.Runner) {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- r.Run(ctx) }()
		DeferCleanup(func() {
			cancel()
			Eventually(done).Should(Receive())
		})
	}

	Describe("Supervisor", func() {
		It("enforces the window and keeps a guardian running", func() {
			start(newSupervisor())
			game := table.Spawn("game.exe")

			Eventually(func() bool { return table.Alive(game) }).Should(BeFalse())
			Eventually(session.LockCount).Should(Equal(1))
			Consistently(session.LockCount, 5*tick, tick).Should(Equal(1))
			Expect(launcher.Started()).To(ConsistOf(domain.RoleGuardian))

			Eventually(func() []domain.EventKind {
				events, _ := journal.Recent(10)
				kinds := make([]domain.EventKind, 0, len(events))
				for _, ev := range events {
					kinds = append(kinds, ev.Kind)
				}
				return kinds
			}).Should(ContainElements(domain.EventProcessKill, domain.EventActionFired))

			states, err := journal.GetAll()
			Expect(err).NotTo(HaveOccurred())
			Expect(states).To(HaveLen(1))
			Expect(states[0].Role).To(Equal(domain.RoleSupervisor))
			Expect(states[0].AppVersion).To(Equal("test"))
		})

		It("picks up blacklist changes written by another process", func() {
			start(newSupervisor())

			other := infra.NewFileConfigStore(store.Path(), logger)
			other.Load()
			Expect(other.Update(func(cfg *domain.Config) error {
				cfg.GlobalBlacklist = append(cfg.GlobalBlacklist, domain.BlacklistEntry{Name: "chat.exe", Active: true})
				return nil
			})).To(Succeed())

			Eventually(func() int { return len(store.Snapshot().GlobalBlacklist) }).Should(Equal(2))
			chat := table.Spawn("chat.exe")
			Eventually(func() bool { return table.Alive(chat) }).Should(BeFalse())
		})

		It("refuses to run while another instance holds the marker", func() {
			holder := table.Spawn("supervisor", "daemon", "--role=supervisor")
			lockPath := filepath.Join(tmpDir, "supervisor.lock")
			Expect(os.WriteFile(lockPath, []byte(strconv.Itoa(holder)), 0600)).To(Succeed())

			err := newSupervisor().Run(context.Background())

			Expect(err).To(MatchError(domain.ErrAlreadyRunning))
			Expect(launcher.Started()).To(BeEmpty())
		})

		It("releases the marker on shutdown", func() {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			done := make(chan error, 1)
			s := newSupervisor()
			go func() { done <- s.Run(ctx) }()

			marker := func() string {
				data, _ := os.ReadFile(filepath.Join(tmpDir, "supervisor.lock"))
				return string(data)
			}
			Eventually(marker).Should(Equal(strconv.Itoa(table.GetCurrentPID())))

			cancel()
			Eventually(done).Should(Receive(BeNil()))
			Expect(marker()).To(BeEmpty())
		})
	})

	Describe("Guardian", func() {
		It("relaunches the supervisor whenever it disappears", func() {
			g := daemon.NewGuardian(
				daemon.GuardianConfig{CheckInterval: tick, HeartbeatInterval: tick},
				table, launcher, journal, journal,
				domain.Daemon{PID: table.GetCurrentPID(), Role: domain.RoleGuardian, AppVersion: "test"},
				logger,
			)
			start(g)

			supervisorPIDs := func() []int {
				pids, _ := table.FindByArgs(launcher.Args(domain.RoleSupervisor)...)
				return pids
			}
			Eventually(supervisorPIDs).Should(HaveLen(1))

			Expect(table.Kill(supervisorPIDs()[0])).To(Succeed())
			Eventually(supervisorPIDs).Should(HaveLen(1))
			Expect(launcher.Started()).To(HaveLen(2))

			events, err := journal.Recent(10)
			Expect(err).NotTo(HaveOccurred())
			Expect(events).NotTo(BeEmpty())
			Expect(events[0].Kind).To(Equal(domain.EventRelaunch))
		})
	})
})
