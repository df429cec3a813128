package testutil

import "github.com/roach88/happensbefore/internal/ir"

// STSTrace is a small trace for the built-in STS schema. One packet crosses
// from switch 1 to switch 2 and is modified there; the controller answers
// a PACKET_IN through the proxy and then runs a barrier.
//
// Expected edges:
//
//	1->2 2->3 3->4 4->5  same_actor (tag) inside switch 1
//	5->6                 transfer over the 1:1 <-> 2:3 link
//	7->8                 back_reference (modification end)
//	10->13               proxy (PACKET_OUT caused by PACKET_IN)
//	13->15               barrier_join
//	15->16               persistent (latest barrier reply)
func STSTrace() []ir.Event {
	link := func(node, port, peerNode, peerPort int) []any {
		return []any{
			"packet", "pkt-1", "is_connected", true,
			"is_switch", true, "node", node, "port", port,
			"connected_is_switch", true, "connected_node", peerNode, "connected_port", peerPort,
		}
	}
	with := func(kv []any, extra []any) []any {
		return append(kv, extra...)
	}
	pkt := func(dpid int) []any {
		return []any{"dpid", dpid, "packet_register_event_id", 0}
	}
	ctl := func(msg int, msgType string) []any {
		return []any{"dpid", 1, "cid", 1, "msg", msg, "msg_type", msgType}
	}

	return []ir.Event{
		Ev(0, "TracePacketRegister", "packet_obj_id", 100),
		Ev(1, "TraceDpPacketInSwitch", pkt(1)...),
		Ev(2, "TraceFlowTableMatch", pkt(1)...),
		Ev(3, "TraceFlowTableTouch", pkt(1)...),
		Ev(4, "TracePacketActionOutput", pkt(1)...),
		Ev(5, "TraceDpPacketOutSwitch", with(pkt(1), link(1, 1, 2, 3))...),
		Ev(6, "TraceDpPacketInSwitch", with(pkt(2), link(2, 3, 1, 1))...),
		Ev(7, "TracePacketActionModificationBegin", pkt(2)...),
		Ev(8, "TracePacketActionModificationEnd", with(pkt(2), []any{"precursor_id", 7})...),
		Ev(9, "TracePacketDeregister", "packet_obj_id", 100),
		Ev(10, "TraceOfMessageToController", ctl(10, "OFPT_PACKET_IN")...),
		Ev(11, "OfHandleVendorHb", "dpid", 1, "cid", 1, "msg", 10, "msg_in", 10, "msg_in_floodlight_sw_id", 7),
		Ev(12, "OfHandleVendorHb", "dpid", 1, "cid", 1, "msg_out", 20, "msg_in", 10, "msg_in_floodlight_sw_id", 7),
		Ev(13, "TraceOfMessageFromController", ctl(20, "OFPT_PACKET_OUT")...),
		Ev(14, "TraceOfMessageFromController", ctl(21, "OFPT_BARRIER_REQUEST")...),
		Ev(15, "TraceOfMessageToController", ctl(21, "OFPT_BARRIER_REPLY")...),
		Ev(16, "TraceOfMessageFromController", ctl(22, "OFPT_ECHO_REPLY")...),
	}
}
