package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestNotifier(sender Sender) *Notifier {
	return NewNotifier(sender, NotifierConfig{AppName: "Duka", FrontendURL: "https://app.example.com/"}, slog.Default())
}

func TestOrderConfirmationFormatsKES(t *testing.T) {
	sender := NewMemorySender()
	n := newTestNotifier(sender)

	err := n.SendOrderConfirmation(context.Background(), OrderConfirmation{
		CustomerName:  "Wanjiku",
		CustomerEmail: "wanjiku@example.com",
		OrderNumber:   "ORD-1",
		Lines:         []OrderLine{{Name: "Sugar 2kg", Quantity: 1, UnitPrice: 165, Total: 165}},
		Subtotal:      142.24,
		Tax:           22.76,
		Total:         165,
	})
	require.NoError(t, err)

	msgs := sender.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "wanjiku@example.com", msgs[0].To)
	require.Equal(t, "Order ORD-1 confirmed", msgs[0].Subject)
	require.Contains(t, msgs[0].HTML, "KES 165.00")
	require.Contains(t, msgs[0].HTML, "KES 22.76")
	require.Contains(t, msgs[0].HTML, "Sugar 2kg")
}

func TestPasswordResetLink(t *testing.T) {
	sender := NewMemorySender()
	n := newTestNotifier(sender)

	err := n.SendPasswordReset(context.Background(), PasswordReset{Name: "Otieno", Email: "o@example.com", Token: "abc123", ExpiresIn: time.Hour})
	require.NoError(t, err)
	require.Contains(t, sender.Messages()[0].HTML, "https://app.example.com/reset-password/abc123")
	require.Equal(t, "https://app.example.com/reset-password/abc123", n.ResetURL("abc123"))
}

func TestPurchaseOrderEmail(t *testing.T) {
	sender := NewMemorySender()
	n := newTestNotifier(sender)

	err := n.SendPurchaseOrder(context.Background(), PurchaseOrderEmail{
		SupplierName:  "Mumias",
		SupplierEmail: "orders@mumias.example.com",
		PONumber:      "PO-1-1",
		DueDate:       time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
		Lines:         []PurchaseOrderLine{{Code: "SUG2", Name: "Sugar", Quantity: 12.5, UnitPrice: 100, Tax: 200, Amount: 1450}},
		Subtotal:      1250,
		Tax:           200,
		GrandTotal:    1450,
	})
	require.NoError(t, err)
	html := sender.Messages()[0].HTML
	require.Contains(t, html, "09 Mar 2026")
	require.Contains(t, html, "12.5")
	require.Contains(t, html, "KES 1,450.00")
}

func TestDeliveryFailureIsReturned(t *testing.T) {
	sender := NewMemorySender()
	sender.Err = errors.New("relay down")
	n := newTestNotifier(sender)

	err := n.SendWelcome(context.Background(), WelcomeEmail{Name: "A", Email: "a@example.com"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "relay down")

	err = n.SendWelcome(context.Background(), WelcomeEmail{Name: "A"})
	require.ErrorIs(t, err, ErrSend)
}

func TestDeferredSenderCarriesOnlyOrderConfirmations(t *testing.T) {
	direct := NewMemorySender()
	queued := NewMemorySender()
	n := NewNotifier(direct, NotifierConfig{AppName: "Duka", Deferred: queued}, slog.Default())
	ctx := context.Background()

	require.NoError(t, n.SendOrderConfirmation(ctx, OrderConfirmation{CustomerName: "W", CustomerEmail: "w@example.com", OrderNumber: "ORD-1"}))
	require.NoError(t, n.SendWelcome(ctx, WelcomeEmail{Name: "A", Email: "a@example.com"}))
	require.NoError(t, n.SendPasswordReset(ctx, PasswordReset{Name: "A", Email: "a@example.com", Token: "t", ExpiresIn: time.Hour}))
	require.NoError(t, n.SendPurchaseOrder(ctx, PurchaseOrderEmail{SupplierName: "S", SupplierEmail: "s@example.com", PONumber: "PO-1"}))

	require.Len(t, queued.Messages(), 1)
	require.Equal(t, "w@example.com", queued.Messages()[0].To)
	require.Len(t, direct.Messages(), 3)

	direct.Err = errors.New("relay down")
	err := n.SendPurchaseOrder(ctx, PurchaseOrderEmail{SupplierName: "S", SupplierEmail: "s@example.com", PONumber: "PO-2"})
	require.ErrorIs(t, err, direct.Err)
}

// serveSMTP accepts connections on a loopback port and hands each one to handle.
func serveSMTP(t *testing.T, handle func(net.Conn)) (string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go handle(conn)
		}
	}()
	return "127.0.0.1", ln.Addr().(*net.TCPAddr).Port
}

// relay answers enough SMTP to accept a message and passes its DATA section to got.
func relay(got chan<- string) func(net.Conn) {
	return func(conn net.Conn) {
		defer conn.Close()
		tp := textproto.NewConn(conn)
		_ = tp.PrintfLine("220 relay.test ESMTP")
		for {
			line, err := tp.ReadLine()
			if err != nil {
				return
			}
			cmd := strings.ToUpper(line)
			switch {
			case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
				_ = tp.PrintfLine("250-relay.test")
				_ = tp.PrintfLine("250 8BITMIME")
			case strings.HasPrefix(cmd, "DATA"):
				_ = tp.PrintfLine("354 go ahead")
				b, err := tp.ReadDotBytes()
				if err != nil {
					return
				}
				got <- string(b)
				_ = tp.PrintfLine("250 queued")
			case strings.HasPrefix(cmd, "QUIT"):
				_ = tp.PrintfLine("221 bye")
				return
			default:
				_ = tp.PrintfLine("250 ok")
			}
		}
	}
}

func TestSMTPSenderDeliversThroughRelay(t *testing.T) {
	got := make(chan string, 1)
	host, port := serveSMTP(t, relay(got))
	s := NewSMTPSender(SMTPConfig{Host: host, Port: port, FromName: "Duka", FromEmail: "noreply@example.com", Timeout: 5 * time.Second}, slog.Default())

	require.NoError(t, s.Send(context.Background(), Message{To: "x@example.com", Subject: "Hi", HTML: "<p>hello</p>"}))
	var body string
	select {
	case body = <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("relay received no message")
	}
	require.Contains(t, body, `From: "Duka" <noreply@example.com>`)
	require.Contains(t, body, "To: <x@example.com>")
	require.Contains(t, body, "Subject: Hi")
	require.Contains(t, body, "text/html")
	require.Contains(t, body, "<p>hello</p>")
}

func TestSMTPSenderWrapsErrors(t *testing.T) {
	got := make(chan string, 1)
	host, port := serveSMTP(t, relay(got))

	s := NewSMTPSender(SMTPConfig{Host: host, Port: port, FromEmail: "noreply@example.com", Timeout: 5 * time.Second}, slog.Default())
	err := s.Send(context.Background(), Message{To: "not-an-address", Subject: "Hi"})
	require.ErrorIs(t, err, ErrSend)

	// the relay does not offer AUTH
	s = NewSMTPSender(SMTPConfig{Host: host, Port: port, User: "u", Pass: "p", FromEmail: "noreply@example.com", Timeout: 5 * time.Second}, slog.Default())
	err = s.Send(context.Background(), Message{To: "x@example.com", Subject: "Hi"})
	require.ErrorIs(t, err, ErrSend)
	require.Empty(t, got)
}

func TestSMTPSenderTimeoutClosesSession(t *testing.T) {
	closed := make(chan error, 1)
	host, port := serveSMTP(t, func(conn net.Conn) {
		defer conn.Close()
		// never greet; wait for the client to hang up
		_, err := conn.Read(make([]byte, 1))
		closed <- err
	})
	s := NewSMTPSender(SMTPConfig{Host: host, Port: port, FromEmail: "a@example.com", Timeout: 100 * time.Millisecond}, slog.Default())

	start := time.Now()
	err := s.Send(context.Background(), Message{To: "x@example.com"})
	require.ErrorIs(t, err, ErrSend)
	require.Less(t, time.Since(start), 2*time.Second)

	select {
	case err := <-closed:
		require.ErrorIs(t, err, io.EOF)
	case <-time.After(2 * time.Second):
		t.Fatal("session still open after the timeout")
	}
}
