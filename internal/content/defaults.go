package content

// DefaultSections returns the built-in marquee shown when neither the database nor a
// cached snapshot can provide sections. Each call returns a fresh slice.
func DefaultSections() []Section {
	out := make([]Section, len(defaultSections))
	copy(out, defaultSections)
	return out
}

var defaultSections = []Section{
	{Key: "A", Label: "About", Content: `My final goal is to convey thoughts and stories through different mediums and to raise the level of my creative developments with the constant research and study of new techniques for both client and personal projects. I am an avid observer of the world direction in terms of creativity, art and connections with a deep knowledge of the counterculture and the trends, might that be in design, music, movies, products and services. I believe that design is the ultimate representation of the understanding of human behaviours.`},
	{Key: "T", Label: "Techniques", Content: `<strong>Graphic design:</strong> Adobe Creative Suite, Procreate<br/><strong>Digital design:</strong> Figma, Sketch<br/><strong>Generative:</strong> Processing, Java, Nodebox<br/><strong>3D Design:</strong> Cinema 4D, Blender`},
	{Key: "S", Label: "Skills", Content: `Concept generation // Narrative strategy // Art direction // Typography // Illustration // Pattern design // Generative art // Digital design // User experience // 3D Design // Fashion product development`},
	{Key: "C", Label: "Clients", Content: `<div class='flex flex-wrap gap-2 underline'><a href='https://www.oakley.com/' target='_blank' rel='noopener noreferrer'>Oakley</a>, <a href='https://www.palaceskateboards.com/' target='_blank' rel='noopener noreferrer'>Palace Skateboards</a>, <a href='https://www.ngg.net/' target='_blank' rel='noopener noreferrer'>NGG</a>, <a href='https://www.reebok.com/' target='_blank' rel='noopener noreferrer'>Reebok</a>, <a href='https://www.polimoda.com/' target='_blank' rel='noopener noreferrer'>Polimoda</a>, <a href='https://www.brionvega.it/' target='_blank' rel='noopener noreferrer'>Brionvega</a>, <a href='https://www.fornasetti.com/' target='_blank' rel='noopener noreferrer'>Fornasetti</a>, <a href='https://www.vivoconcerti.com/' target='_blank' rel='noopener noreferrer'>Vivo Concerti</a>, <a href='https://www.canon.com/' target='_blank' rel='noopener noreferrer'>Canon</a>, <a href='https://www.lonelyplanet.com/' target='_blank' rel='noopener noreferrer'>Lonely Planet</a>, <a href='https://www.rittersport.com/' target='_blank' rel='noopener noreferrer'>Ritter Sport</a>, <a href='https://www.zooppa.com/' target='_blank' rel='noopener noreferrer'>Zooppa</a>, <a href='https://www.contraste.com/' target='_blank' rel='noopener noreferrer'>Contraste</a></div>`},
	{Key: "L", Label: "Links", Content: `<div class='flex flex-wrap gap-4 underline'><a href='https://www.instagram.com/' target='_blank' rel='noopener noreferrer'>Instagram</a> <a href='https://www.linkedin.com/' target='_blank' rel='noopener noreferrer'>LinkedIn</a> <a href='https://github.com/' target='_blank' rel='noopener noreferrer'>Github</a></div>`},
	{Key: "D", Label: "Lecturing", Content: `<span>Teaching Digital Design @ <a href='https://www.polimoda.com/' target='_blank' rel='noopener noreferrer' class='underline'>Polimoda, Florence</a></span>`},
	{Key: "I", Label: "Inspiration", Content: `<a href='#' class='underline'>Interesting and inspiring links</a>`},
	{Key: "M", Label: "Schedule", Content: `<span>Schedule a meeting with me </span><a href='https://calendar.app.google/2HhMiVkUSuZTfMWz5' target='_blank' rel='noopener noreferrer' class='underline'>https://calendar.app.google/2HhMiVkUSuZTfMWz5</a>`},
}
