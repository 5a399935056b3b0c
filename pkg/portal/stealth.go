package portal

// fingerprintPatch runs before any page script and hides the usual
// automation tells. Each override is guarded so a frozen property never
// aborts the rest of the patch.
const fingerprintPatch = `(() => {
  const define = (obj, prop, value) => {
    try {
      Object.defineProperty(obj, prop, { get: () => value });
    } catch (e) {}
  };

  define(navigator, 'webdriver', false);
  define(navigator, 'languages', ['pt-BR', 'pt']);
  define(navigator, 'language', 'pt-BR');
  define(navigator, 'plugins', [1, 2, 3, 4, 5]);
  define(navigator, 'mimeTypes', [{ type: 'application/pdf' }]);
  define(navigator, 'hardwareConcurrency', 4);

  try {
    const getParameter = WebGLRenderingContext.prototype.getParameter;
    WebGLRenderingContext.prototype.getParameter = function (param) {
      if (param === 37445) return 'Intel Inc.';
      if (param === 37446) return 'Intel Iris OpenGL Engine';
      return getParameter.call(this, param);
    };
  } catch (e) {}

  try {
    window.AudioContext = window.AudioContext || window.webkitAudioContext;
  } catch (e) {}

  try {
    delete Object.getPrototypeOf(navigator).webdriver;
  } catch (e) {}
})();`
