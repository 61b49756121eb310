// Package measurement defines the value objects the estimator ingests —
// IMU, body-velocity, absolute-position, and legged-kinematics samples —
// and the thread-safe per-stream queues that hand them from producer
// goroutines to the single estimator coordinator goroutine.
package measurement

// Timestamp is a monotonic real-valued seconds timestamp. A Queue delivers
// measurements in push order; it does not reorder them by Timestamp.
type Timestamp = float64

// ImuMeasurement carries a single inertial sample: angular velocity and
// linear acceleration in the body frame, plus an optional orientation
// quaternion some IMUs report alongside raw rates.
type ImuMeasurement struct {
	T Timestamp

	AngularVelocity [3]float64 // rad/s, body frame
	LinearAccel     [3]float64 // m/s^2, body frame

	HasOrientation bool
	Orientation    [4]float64 // unit quaternion (w, x, y, z), body-to-world
}

// VelocityMeasurement carries a body-frame velocity fix (e.g. wheel
// odometry or a Doppler sensor) with its noise covariance.
type VelocityMeasurement struct {
	T Timestamp

	BodyVelocity [3]float64
	Covariance   [3][3]float64 // Σ_v, symmetric positive semidefinite
}

// PositionMeasurement carries an absolute world-frame position fix (e.g. a
// GPS/RTK receiver after local tangent-plane conversion by the adapter).
type PositionMeasurement struct {
	T Timestamp

	Position   [3]float64
	Covariance [3][3]float64 // Σ_p
}

// LimbContact carries one limb's kinematics observation within a
// KinematicsMeasurement: whether it is in contact, the foot position in
// the body frame as resolved by the external forward-kinematics
// collaborator, its Jacobian with respect to joint encoder values, and the
// resulting foot-position covariance.
type LimbContact struct {
	Contact      bool
	FootPosition [3]float64  // p_i^B, body frame
	Jacobian     [][]float64 // J_i, 3 x n_joints
	Covariance   [3][3]float64
}

// KinematicsMeasurement carries one legged-kinematics sample: the contact
// state, foot position, and Jacobian for every limb the robot has, indexed
// by limb ID.
type KinematicsMeasurement struct {
	T     Timestamp
	Limbs map[int]LimbContact
}
