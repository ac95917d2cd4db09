// Package proconn is a client for the Linux process events connector.
//
// A Listener binds a NETLINK_CONNECTOR socket, subscribes to the proc
// connector multicast group and decodes each notification (fork, exec, uid,
// gid, sid, ptrace, comm, coredump, exit) into a typed event passed to the
// matching handler in Handlers:
//
//	l, err := proconn.New(proconn.Handlers{
//		Exit: func(ev proconn.ExitEvent) error {
//			fmt.Println(ev.Process.PID, ev.WaitStatus().ExitStatus())
//			return nil
//		},
//	}, nil)
//	if err != nil {
//		return err
//	}
//	go func() {
//		<-done
//		l.Stop()
//	}()
//	err = l.Run(ctx)
//
// Fields the kernel added over time, such as the parent of an exiting task,
// are decoded only when the message is long enough to carry them and are
// MissingPID otherwise.
//
// Subscribing requires CAP_NET_ADMIN.
package proconn
