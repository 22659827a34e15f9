package session

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	gomock "go.uber.org/mock/gomock"

	"github.com/proflab/debugkit/debugctl"
	"github.com/proflab/debugkit/debugdir"
	"github.com/proflab/debugkit/recording"
)

var _ = Describe("Session", func() {
	var (
		tmpDir string
		sink   *debugdir.Sink
		sess   *Session
	)

	quietLogger := log.New(io.Discard, "", 0)

	newSession := func(b Builder) *Session {
		return b.
			WithID("my_mod").
			WithSink(sink).
			WithLogger(quietLogger).
			Build()
	}

	readFile := func(path string) string {
		content, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())
		return string(content)
	}

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		sink = debugdir.NewSink(filepath.Join(tmpDir, "debug"))
		sess = newSession(MakeBuilder())
	})

	AfterEach(func() {
		sink.Close()
	})

	Context("profiling", func() {
		It("should record completed start/stop pairs", func() {
			sess.StartProfiling("chunk_loading")
			time.Sleep(10 * time.Millisecond)
			sess.StopProfiling("chunk_loading")

			Expect(sess.Registry().CallCount("chunk_loading")).
				To(Equal(uint64(1)))
			Expect(sess.ProfilingRecordCount()).To(Equal(1))
		})

		It("should buffer a summary line even for a stray stop", func() {
			sess.StopProfiling("never_started")

			Expect(sess.Registry().CallCount("never_started")).
				To(Equal(uint64(0)))
			Expect(sess.ProfilingRecordCount()).To(Equal(1))
		})

		It("should measure scopes without buffering lines", func() {
			func() {
				defer sess.Scope("scoped").Done()
				time.Sleep(5 * time.Millisecond)
			}()

			Expect(sess.Registry().CallCount("scoped")).
				To(Equal(uint64(1)))
			Expect(sess.ProfilingRecordCount()).To(Equal(0))
		})
	})

	Context("event logging", func() {
		It("should timestamp and buffer events in order", func() {
			sess.LogEvent("first event")
			sess.LogEvent("second event")

			Expect(sess.EventCount()).To(Equal(2))
		})
	})

	Context("flushing", func() {
		It("should write one report with performance and events", func() {
			sess.StartProfiling("chunk_loading")
			time.Sleep(10 * time.Millisecond)
			sess.StopProfiling("chunk_loading")
			sess.LogEvent("first event")
			sess.LogEvent("second event")

			path, err := sess.Flush().Wait()
			Expect(err).NotTo(HaveOccurred())

			content := readFile(path)
			Expect(content).To(HavePrefix("=== Debug Data Report ===\n"))
			Expect(content).To(ContainSubstring("Owner: my_mod\n"))
			Expect(strings.Count(content, "Operation: ")).To(Equal(1))
			Expect(strings.Count(content, "] ")).To(Equal(2))
			Expect(content).To(HaveSuffix("=== End of Report ===\n"))

			firstIdx := strings.Index(content, "first event")
			secondIdx := strings.Index(content, "second event")
			Expect(firstIdx).To(BeNumerically("<", secondIdx))
		})

		It("should clear buffers once the write future resolves", func() {
			sess.StartProfiling("op")
			sess.StopProfiling("op")
			sess.LogEvent("event")

			_, err := sess.Flush().Wait()
			Expect(err).NotTo(HaveOccurred())

			Expect(sess.ProfilingRecordCount()).To(Equal(0))
			Expect(sess.EventCount()).To(Equal(0))
		})

		It("should produce an empty report on a second immediate flush", func() {
			sess.StartProfiling("op")
			sess.StopProfiling("op")
			sess.LogEvent("event")

			_, err := sess.Flush().Wait()
			Expect(err).NotTo(HaveOccurred())

			path, err := sess.Flush().Wait()
			Expect(err).NotTo(HaveOccurred())

			content := readFile(path)
			Expect(content).NotTo(ContainSubstring("--- Performance ---"))
			Expect(content).NotTo(ContainSubstring("--- Events ---"))
		})

		It("should retain buffers when the write fails", func() {
			blocker := filepath.Join(tmpDir, "blocked")
			Expect(os.WriteFile(blocker, []byte("x"), 0o644)).To(Succeed())

			failingSink := debugdir.NewSink(filepath.Join(blocker, "debug"))
			defer failingSink.Close()

			failing := MakeBuilder().
				WithID("my_mod").
				WithSink(failingSink).
				WithLogger(quietLogger).
				Build()

			failing.StopProfiling("op")
			failing.LogEvent("event")

			_, err := failing.Flush().Wait()
			Expect(err).To(HaveOccurred())

			Expect(failing.ProfilingRecordCount()).To(Equal(1))
			Expect(failing.EventCount()).To(Equal(1))
		})

		It("should keep entries buffered after the flush was submitted", func() {
			sess.LogEvent("flushed event")

			fut := sess.Flush()
			sess.LogEvent("later event")

			_, err := fut.Wait()
			Expect(err).NotTo(HaveOccurred())

			Expect(sess.EventCount()).To(Equal(1))
		})

		It("should tolerate overlapping flushes", func() {
			sess.StopProfiling("op")
			sess.LogEvent("first event")
			sess.LogEvent("second event")

			first := sess.Flush()
			second := sess.Flush()

			_, err := first.Wait()
			Expect(err).NotTo(HaveOccurred())
			_, err = second.Wait()
			Expect(err).NotTo(HaveOccurred())

			Expect(sess.ProfilingRecordCount()).To(Equal(0))
			Expect(sess.EventCount()).To(Equal(0))
		})

		It("should not settle entries logged between overlapping flushes", func() {
			sess.LogEvent("captured event")

			first := sess.Flush()
			sess.LogEvent("uncaptured event")
			second := sess.Flush()
			sess.LogEvent("later event")

			_, err := first.Wait()
			Expect(err).NotTo(HaveOccurred())
			_, err = second.Wait()
			Expect(err).NotTo(HaveOccurred())

			Expect(sess.EventCount()).To(Equal(1))
		})

		It("should tolerate a clear racing an in-flight flush", func() {
			sess.LogEvent("flushed event")

			fut := sess.Flush()
			sess.Clear()
			sess.LogEvent("later event")

			_, err := fut.Wait()
			Expect(err).NotTo(HaveOccurred())

			Expect(sess.EventCount()).To(Equal(1))
		})
	})

	Context("clearing", func() {
		It("should discard buffers and registry state", func() {
			sess.StartProfiling("op")
			sess.StopProfiling("op")
			sess.LogEvent("event")

			sess.Clear()

			Expect(sess.ProfilingRecordCount()).To(Equal(0))
			Expect(sess.EventCount()).To(Equal(0))
			Expect(sess.Registry().Snapshot()).To(BeEmpty())
		})
	})

	Context("with a gate", func() {
		var gate *debugctl.Gate

		BeforeEach(func() {
			gate = debugctl.NewGate()
			sess = newSession(MakeBuilder().WithGate(gate))
		})

		It("should do nothing while the gate is disabled", func() {
			sess.StartProfiling("op")
			sess.StopProfiling("op")
			sess.LogEvent("event")

			Expect(sess.ProfilingRecordCount()).To(Equal(0))
			Expect(sess.EventCount()).To(Equal(0))
		})

		It("should discard accumulated state when the gate closes", func() {
			gate.Set(true)
			sess.StartProfiling("op")
			sess.StopProfiling("op")
			sess.LogEvent("event")

			gate.Set(false)

			Expect(sess.ProfilingRecordCount()).To(Equal(0))
			Expect(sess.EventCount()).To(Equal(0))
			Expect(sess.Registry().Snapshot()).To(BeEmpty())
		})
	})

	Context("ticking", func() {
		BeforeEach(func() {
			sess = newSession(MakeBuilder().WithReportEvery(2))
		})

		It("should flush on every Nth tick with buffered data", func() {
			sess.LogEvent("event")

			sess.Tick(1)
			names, err := sink.List().Wait()
			Expect(err).NotTo(HaveOccurred())
			Expect(names).To(BeEmpty())

			sess.Tick(2)
			names, err = sink.List().Wait()
			Expect(err).NotTo(HaveOccurred())
			Expect(names).To(HaveLen(1))
		})

		It("should not flush when there is nothing buffered", func() {
			sess.Tick(2)

			names, err := sink.List().Wait()
			Expect(err).NotTo(HaveOccurred())
			Expect(names).To(BeEmpty())
		})
	})

	Context("with a recorder", func() {
		var (
			mockCtrl *gomock.Controller
			recorder *MockRecorder
		)

		BeforeEach(func() {
			mockCtrl = gomock.NewController(GinkgoT())
			recorder = NewMockRecorder(mockCtrl)
		})

		It("should create the timing table at build time", func() {
			recorder.EXPECT().ListTables().Return(nil)
			recorder.EXPECT().
				CreateTable(recording.TimingTable, gomock.Any())

			newSession(MakeBuilder().WithRecorder(recorder))
		})

		It("should not recreate an existing timing table", func() {
			recorder.EXPECT().ListTables().
				Return([]string{recording.TimingTable})

			newSession(MakeBuilder().WithRecorder(recorder))
		})

		It("should insert one row per operation on flush", func() {
			recorder.EXPECT().ListTables().Return(nil)
			recorder.EXPECT().
				CreateTable(recording.TimingTable, gomock.Any())

			sess = newSession(MakeBuilder().WithRecorder(recorder))

			sess.StartProfiling("op")
			sess.StopProfiling("op")

			var inserted recording.TimingEntry
			recorder.EXPECT().
				InsertData(recording.TimingTable, gomock.Any()).
				Do(func(_ string, entry any) {
					inserted = entry.(recording.TimingEntry)
				})
			recorder.EXPECT().Flush()

			_, err := sess.Flush().Wait()
			Expect(err).NotTo(HaveOccurred())

			Expect(inserted.Session).To(Equal("my_mod"))
			Expect(inserted.Operation).To(Equal("op"))
			Expect(inserted.CallCount).To(Equal(uint64(1)))
		})
	})

	Context("building", func() {
		It("should panic without a sink", func() {
			Expect(func() {
				MakeBuilder().Build()
			}).To(Panic())
		})

		It("should generate an id when none is given", func() {
			s := MakeBuilder().
				WithSink(sink).
				WithLogger(quietLogger).
				Build()

			Expect(s.ID()).NotTo(BeEmpty())
		})
	})
})
