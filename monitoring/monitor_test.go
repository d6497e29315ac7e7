package monitoring

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/pulsec/config"
	"github.com/sarchlab/pulsec/flags"
	"github.com/sarchlab/pulsec/program"
	"github.com/sarchlab/pulsec/timeline"
)

const shortPulseDoc = `{
  "channels": {"laser": 0, "mw": 1},
  "instructions": [[1, 0, 0, 80], [3, 0, 0, 4], [1, 0, 0, 80]]
}`

var _ = Describe("Monitor", func() {
	var (
		m      *Monitor
		router http.Handler
	)

	BeforeEach(func() {
		s := config.Default()
		s.ClockPeriod = 10

		m = NewMonitor(s)
		m.profileDuration = 10 * time.Millisecond
		router = m.Router()
	})

	serve := func(method, target, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, target, strings.NewReader(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		return rec
	}

	It("should compile a document", func() {
		rec := serve(http.MethodPost, "/api/compile", shortPulseDoc)

		Expect(rec.Code).To(Equal(http.StatusOK))

		rsp := compileRsp{}
		Expect(json.Unmarshal(rec.Body.Bytes(), &rsp)).To(Succeed())
		Expect(rsp.Instructions).To(Equal(program.Program{
			program.Cont(flags.Bit(0), 50),
			program.Cont(flags.Bit(0)|flags.Bit(1), 50),
			program.Cont(flags.Bit(0), 64),
		}))
		Expect(rsp.Runs).To(HaveLen(1))
		Expect(rsp.Listing).To(ContainSubstring("laser(0) mw(1)"))
	})

	It("should report an unsatisfiable program", func() {
		rec := serve(http.MethodPost, "/api/compile",
			`{"channels": {"a": 0}, "instructions": [[1, 0, 0, 4]]}`)

		Expect(rec.Code).To(Equal(http.StatusUnprocessableEntity))
		Expect(rec.Body.String()).To(ContainSubstring("error"))
	})

	It("should reject a malformed document", func() {
		rec := serve(http.MethodPost, "/api/compile", `{"bogus": 1}`)

		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("should reject an unknown strategy", func() {
		rec := serve(http.MethodPost, "/api/compile?strategy=magic", shortPulseDoc)

		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("should reconstruct the timeline", func() {
		rec := serve(http.MethodPost, "/api/timeline", shortPulseDoc)

		Expect(rec.Code).To(Equal(http.StatusOK))

		lines := timeline.PlotLines{}
		Expect(json.Unmarshal(rec.Body.Bytes(), &lines)).To(Succeed())
		Expect(lines).To(HaveKey("laser"))
		Expect(lines["mw"].Times).To(Equal([]float64{0, 80, 80, 84, 84, 164}))
		Expect(lines["mw"].Levels).To(Equal([]int{0, 0, 1, 1, 0, 0}))
	})

	It("should reconstruct the compiled timeline", func() {
		rec := serve(http.MethodPost, "/api/timeline?compiled=true", shortPulseDoc)

		Expect(rec.Code).To(Equal(http.StatusOK))

		lines := timeline.PlotLines{}
		Expect(json.Unmarshal(rec.Body.Bytes(), &lines)).To(Succeed())
		Expect(lines["mw"].Times).To(Equal([]float64{0, 50, 50, 100, 100, 164}))
	})

	It("should count requests", func() {
		serve(http.MethodPost, "/api/compile", shortPulseDoc)
		serve(http.MethodPost, "/api/timeline", shortPulseDoc)

		rec := serve(http.MethodGet, "/api/progress", "")
		Expect(rec.Code).To(Equal(http.StatusOK))

		var bars []map[string]any
		Expect(json.Unmarshal(rec.Body.Bytes(), &bars)).To(Succeed())
		Expect(bars).To(HaveLen(1))
		Expect(bars[0]["name"]).To(Equal("requests"))
		Expect(bars[0]["finished"]).To(BeNumerically("==", 2))
		Expect(bars[0]["in_progress"]).To(BeNumerically("==", 0))
	})

	It("should create and complete progress bars", func() {
		bar := m.CreateProgressBar("record", 3)
		bar.IncrementInProgress(2)
		bar.MoveInProgressToFinished(1)
		bar.IncrementFinished(1)

		Expect(bar.Finished).To(Equal(uint64(2)))
		Expect(bar.InProgress).To(Equal(uint64(1)))
		Expect(m.progressBars).To(HaveLen(2))

		m.CompleteProgressBar(bar)
		Expect(m.progressBars).To(HaveLen(1))
	})

	It("should serialize the settings", func() {
		rec := serve(http.MethodGet, "/api/config", "")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.Len()).To(BeNumerically(">", 0))
	})

	It("should list resources", func() {
		rec := serve(http.MethodGet, "/api/resource", "")

		Expect(rec.Code).To(Equal(http.StatusOK))

		rsp := resourceRsp{}
		Expect(json.Unmarshal(rec.Body.Bytes(), &rsp)).To(Succeed())
		Expect(rsp.MemorySize).To(BeNumerically(">", 0))
	})

	It("should collect a profile", func() {
		rec := serve(http.MethodGet, "/api/profile", "")

		Expect(rec.Code).To(BeElementOf(http.StatusOK, http.StatusConflict))
	})

	It("should serve the page", func() {
		rec := serve(http.MethodGet, "/", "")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(HavePrefix("<!DOCTYPE html>"))
	})

	It("should not accept privileged ports", func() {
		Expect(m.WithPortNumber(80).portNumber).To(Equal(0))
		Expect(m.WithPortNumber(8080).portNumber).To(Equal(8080))
	})
})
