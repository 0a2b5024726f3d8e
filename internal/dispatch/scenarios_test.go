package dispatch_test

import (
	"context"
	"fmt"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/chatrelay/chatrelay/internal/dispatch"
	"github.com/chatrelay/chatrelay/internal/event"
	"github.com/chatrelay/chatrelay/pkg/types"
)

var _ = Describe("Dispatcher", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	Describe("normal mode", func() {
		var h *harness

		BeforeEach(func() {
			h = newHarness(newFakeThreads("queued", "in_progress", "completed"), dispatch.Options{})
		})

		It("records both turns when the run completes", func() {
			sess, err := h.d.CreateSession(ctx, "u1", "helpful", types.ModeNormal)
			Expect(err).NotTo(HaveOccurred())
			Expect(sess.SystemPrompt).To(Equal("You are helpful"))
			Expect(sess.HasThread()).To(BeTrue())

			result := h.d.SendMessage(ctx, sess.ID, "Hello")
			Expect(result.Success).To(BeTrue(), result.Error)
			Expect(result.Response).To(Equal("Hi there"))

			history := h.d.GetHistory(sess.ID)
			Expect(history).To(HaveLen(2))
			Expect(history[0].Role).To(Equal(types.RoleUser))
			Expect(history[0].Content).To(Equal("Hello"))
			Expect(history[1].Role).To(Equal(types.RoleAssistant))
			Expect(history[1].Content).To(Equal("Hi there"))

			Expect(h.threads.agents).To(HaveLen(1))
			Expect(h.threads.agents[0].Instructions).To(Equal("You are helpful"))
			Expect(h.threads.agentsDeleted).To(Equal([]string{"asst_1"}))
			Expect(h.threads.polls).To(Equal(3))
		})

		It("persists the turn so a restart sees it", func() {
			sess, err := h.d.CreateSession(ctx, "u1", "helpful", types.ModeNormal)
			Expect(err).NotTo(HaveOccurred())
			Expect(h.d.SendMessage(ctx, sess.ID, "Hello").Success).To(BeTrue())

			reloaded, ok := h.reload().Get(sess.ID)
			Expect(ok).To(BeTrue())
			Expect(reloaded.Messages).To(HaveLen(2))
			Expect(*reloaded.ThreadID).To(Equal(*sess.ThreadID))
		})

		It("keeps the user turn but no assistant turn when the run fails", func() {
			h.threads.statuses = []string{"queued", "failed"}
			h.threads.lastError = "rate limit exceeded"
			sess, err := h.d.CreateSession(ctx, "u1", "helpful", types.ModeNormal)
			Expect(err).NotTo(HaveOccurred())

			result := h.d.SendMessage(ctx, sess.ID, "Hello")
			Expect(result.Success).To(BeFalse())
			Expect(result.Error).To(ContainSubstring("run failed with status: failed"))
			Expect(result.Error).To(ContainSubstring("rate limit exceeded"))
			Expect(result.Err).To(MatchError(dispatch.ErrRemoteInvocation))

			history := h.d.GetHistory(sess.ID)
			Expect(history).To(HaveLen(1))
			Expect(history[0].Role).To(Equal(types.RoleUser))

			reloaded, _ := h.reload().Get(sess.ID)
			Expect(reloaded.Messages).To(HaveLen(1))
			Expect(h.threads.agentsDeleted).To(HaveLen(1))
		})

		DescribeTable("treats every non-completed terminal status as failure",
			func(status string) {
				h.threads.statuses = []string{status}
				sess, err := h.d.CreateSession(ctx, "u1", "default", types.ModeNormal)
				Expect(err).NotTo(HaveOccurred())

				result := h.d.SendMessage(ctx, sess.ID, "Hello")
				Expect(result.Success).To(BeFalse())
				Expect(result.Error).To(ContainSubstring(status))
				Expect(h.d.GetHistory(sess.ID)).To(HaveLen(1))
			},
			Entry("failed", "failed"),
			Entry("cancelled", "cancelled"),
			Entry("expired", "expired"),
			Entry("requires_action", "requires_action"),
			Entry("incomplete", "incomplete"),
		)

		It("times out after the wait budget and releases the agent", func() {
			h = newHarness(newFakeThreads("in_progress"), dispatch.Options{
				PollInterval: time.Second,
				MaxWait:      5 * time.Second,
			})
			sess, err := h.d.CreateSession(ctx, "u1", "default", types.ModeNormal)
			Expect(err).NotTo(HaveOccurred())

			result := h.d.SendMessage(ctx, sess.ID, "Hello")
			Expect(result.Success).To(BeFalse())
			Expect(result.Error).To(ContainSubstring("timed out after 5s"))
			Expect(result.Error).To(ContainSubstring("last status: in_progress"))
			Expect(h.threads.polls).To(Equal(6))
			Expect(h.threads.agentsDeleted).To(HaveLen(1))
			Expect(h.d.GetHistory(sess.ID)).To(HaveLen(1))
		})

		It("fails when the completed run left no assistant reply", func() {
			h.threads.noReply = true
			sess, err := h.d.CreateSession(ctx, "u1", "default", types.ModeNormal)
			Expect(err).NotTo(HaveOccurred())

			result := h.d.SendMessage(ctx, sess.ID, "Hello")
			Expect(result.Success).To(BeFalse())
			Expect(result.Error).To(ContainSubstring("without an assistant reply"))
		})

		It("sends the enhanced text but stores the raw text", func() {
			h.prompts.implicit["normal"] = "Be concise."
			sess, err := h.d.CreateSession(ctx, "u1", "default", types.ModeNormal)
			Expect(err).NotTo(HaveOccurred())

			Expect(h.d.SendMessage(ctx, sess.ID, "Hello").Success).To(BeTrue())
			Expect(h.threads.posted).To(Equal([]string{"Hello\n\n[implicit guidance]: Be concise."}))
			Expect(h.d.GetHistory(sess.ID)[0].Content).To(Equal("Hello"))
		})

		It("opens a thread for a stored normal session that has none", func() {
			legacy, err := h.store.Create(ctx, "legacy", "u1", types.ModeNormal, "default", "p", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(legacy.HasThread()).To(BeFalse())

			Expect(h.d.SendMessage(ctx, "legacy", "Hello").Success).To(BeTrue())

			reloaded, _ := h.reload().Get("legacy")
			Expect(reloaded.HasThread()).To(BeTrue())
			Expect(*reloaded.ThreadID).To(Equal("thread_1"))
		})

		It("retries a failed agent release without failing the turn", func() {
			h.threads.deleteAgentFailures = 2
			sess, err := h.d.CreateSession(ctx, "u1", "default", types.ModeNormal)
			Expect(err).NotTo(HaveOccurred())

			Expect(h.d.SendMessage(ctx, sess.ID, "Hello").Success).To(BeTrue())
			Expect(h.threads.deleteAgentCall).To(Equal(3))
			Expect(h.threads.agentsDeleted).To(HaveLen(1))
		})

		It("reports an agent creation failure without polling", func() {
			h.threads.createAgentErr = fmt.Errorf("quota exceeded")
			sess, err := h.d.CreateSession(ctx, "u1", "default", types.ModeNormal)
			Expect(err).NotTo(HaveOccurred())

			result := h.d.SendMessage(ctx, sess.ID, "Hello")
			Expect(result.Success).To(BeFalse())
			Expect(result.Error).To(ContainSubstring("create agent"))
			Expect(h.threads.polls).To(BeZero())
		})
	})

	Describe("search mode", func() {
		var h *harness

		BeforeEach(func() {
			h = newHarness(newFakeThreads(), dispatch.Options{})
		})

		It("sends one completion with hosted web search and no thread", func() {
			sess, err := h.d.CreateSession(ctx, "u1", "research_assistant", types.ModeSearch)
			Expect(err).NotTo(HaveOccurred())
			Expect(sess.ThreadID).To(BeNil())

			result := h.d.SendMessage(ctx, sess.ID, "Latest Go release?")
			Expect(result.Success).To(BeTrue())
			Expect(result.Response).To(Equal("reply 1"))

			Expect(h.completer.webSearch).To(Equal([]bool{true}))
			input := h.completer.lastInput()
			Expect(input).To(HavePrefix("System role: You research carefully."))
			Expect(input).To(ContainSubstring("Current user question: Latest Go release?"))
			Expect(h.threads.calls()).To(BeZero())
			Expect(h.d.GetHistory(sess.ID)).To(HaveLen(2))
		})

		It("bounds the context of the 11th message to the 10 most recent turns", func() {
			sess, err := h.d.CreateSession(ctx, "u1", "research_assistant", types.ModeSearch)
			Expect(err).NotTo(HaveOccurred())

			for i := 1; i <= 11; i++ {
				result := h.d.SendMessage(ctx, sess.ID, fmt.Sprintf("question %02d", i))
				Expect(result.Success).To(BeTrue())
			}
			Expect(h.completer.calls()).To(Equal(11))

			input := h.completer.lastInput()
			turns := 0
			for _, line := range strings.Split(input, "\n") {
				if strings.HasPrefix(line, "User: ") || strings.HasPrefix(line, "Assistant: ") {
					turns++
				}
			}
			Expect(turns).To(Equal(10))
			Expect(input).NotTo(ContainSubstring("question 05"))
			Expect(input).To(ContainSubstring("User: question 06"))
			Expect(input).To(ContainSubstring("Assistant: reply 10"))
			Expect(input).NotTo(ContainSubstring("User: question 11"))
			Expect(input).To(ContainSubstring("Current user question: question 11"))
		})

		It("keeps the user turn when the completion fails", func() {
			h.completer.err = fmt.Errorf("upstream unavailable")
			sess, err := h.d.CreateSession(ctx, "u1", "default", types.ModeSearch)
			Expect(err).NotTo(HaveOccurred())

			result := h.d.SendMessage(ctx, sess.ID, "Hello")
			Expect(result.Success).To(BeFalse())
			Expect(result.Error).To(ContainSubstring("upstream unavailable"))

			reloaded, _ := h.reload().Get(sess.ID)
			Expect(reloaded.Messages).To(HaveLen(1))
			Expect(reloaded.Messages[0].Content).To(Equal("Hello"))
		})

		It("uses the nosystem implicit prompt for the nosystem prompt type", func() {
			h.prompts.implicit["search"] = "search guidance"
			h.prompts.implicit["nosystem"] = "raw model"
			sess, err := h.d.CreateSession(ctx, "u1", "nosystem", types.ModeSearch)
			Expect(err).NotTo(HaveOccurred())

			Expect(h.d.SendMessage(ctx, sess.ID, "Hello").Success).To(BeTrue())
			input := h.completer.lastInput()
			Expect(input).To(ContainSubstring("Hello\n\n[implicit guidance]: raw model"))
			Expect(input).NotTo(ContainSubstring("search guidance"))
			Expect(input).NotTo(ContainSubstring("System role:"))
		})
	})

	Describe("unknown sessions", func() {
		It("fails without calling the provider", func() {
			h := newHarness(newFakeThreads(), dispatch.Options{})

			result := h.d.SendMessage(ctx, "does-not-exist", "Hello")
			Expect(result.Success).To(BeFalse())
			Expect(result.Error).To(ContainSubstring("not found"))
			Expect(dispatch.IsNotFound(result.Err)).To(BeTrue())
			Expect(h.threads.calls()).To(BeZero())
			Expect(h.completer.calls()).To(BeZero())
			Expect(h.d.GetHistory("does-not-exist")).To(BeNil())
		})
	})

	Describe("events", func() {
		It("publishes creation, messages and run status", func() {
			h := newHarness(newFakeThreads("in_progress", "completed"), dispatch.Options{})
			subCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			events, err := h.bus.Subscribe(subCtx, event.SessionCreated, event.MessageCreated, event.RunStatus)
			Expect(err).NotTo(HaveOccurred())

			sess, err := h.d.CreateSession(ctx, "u1", "default", types.ModeNormal)
			Expect(err).NotTo(HaveOccurred())
			Expect(h.d.SendMessage(ctx, sess.ID, "Hello").Success).To(BeTrue())

			var seen []event.EventType
			for i := 0; i < 5; i++ {
				var e event.Event
				Eventually(events).Should(Receive(&e))
				Expect(e.SessionID).To(Equal(sess.ID))
				seen = append(seen, e.Type)
			}
			Expect(seen).To(Equal([]event.EventType{
				event.SessionCreated,
				event.RunStatus,
				event.RunStatus,
				event.MessageCreated,
				event.MessageCreated,
			}))
		})
	})
})
