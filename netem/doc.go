// Package netem emulates a lossy, delayed link between a teleoperation
// operator and a robot.
//
// A Channel is one direction of the link. Send rolls for loss, stamps the
// payload with a delivery deadline (now + latency ± jitter/2) and pushes it
// onto a min-heap ordered by (deadline, sequence). A single worker goroutine
// per channel sleeps until the head of the heap is due, or until an earlier
// envelope is inserted, and then hands the payload to the channel's sink.
//
// A Link pairs two channels with two destination queues: commands arrive at
// the robot side, states arrive at the operator side. Receives never block.
package netem
