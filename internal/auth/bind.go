package auth

import "context"

// Session is the realtime connection Bind drives.
type Session interface {
	Connect()
	Disconnect()
}

// Bind keeps s connected exactly while p is authenticated. A new access
// token while connected reopens the connection with it. Bind blocks until
// ctx is done, then disconnects s.
func Bind(ctx context.Context, p *Provider, s Session) {
	states, stop := p.Subscribe()
	defer stop()

	var token string
	for {
		select {
		case <-ctx.Done():
			s.Disconnect()
			return
		case st := <-states:
			next := p.AccessToken()
			switch {
			case !st.Authenticated || next == "":
				token = ""
				s.Disconnect()
			case token != "" && next != token:
				token = next
				s.Disconnect()
				s.Connect()
			default:
				token = next
				s.Connect()
			}
		}
	}
}
